package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"food_rescue/internal/middleware"
)

// Result 记录单次请求的 HTTP 结果，便于聚合统计。
type Result struct {
	Status int
	Body   string
	Err    error
}

type client struct {
	http    *http.Client
	baseURL string
	secret  []byte
}

func main() {
	baseURL := flag.String("base", "http://localhost:8080", "server base url")
	secret := flag.String("jwt-secret", "dev-jwt-secret", "JWT_SECRET of the server, used to sign test tokens")
	providerID := flag.Uint("provider", 1, "provider id owning the test listing")
	quantity := flag.Int64("quantity", 10, "listing quantity")

	// 超额预约测试参数：200 个收件人并发抢 10 份
	nUsers := flag.Int("users", 200, "distinct recipients")
	concurrency := flag.Int("c", 50, "max concurrency")
	flag.Parse()

	cl := &client{
		http:    &http.Client{Timeout: 5 * time.Second},
		baseURL: *baseURL,
		secret:  []byte(*secret),
	}

	providerToken := cl.token(middleware.Actor{UserID: uint(*providerID), Role: middleware.RoleProvider, ProviderID: uint(*providerID)})
	listingID, err := cl.createListing(providerToken, *quantity)
	if err != nil {
		fmt.Fprintln(os.Stderr, "create listing:", err)
		os.Exit(1)
	}
	fmt.Printf("listing %d created with quantity %d\n", listingID, *quantity)

	// 1) 不超额测试：不同收件人并发各预约 1 份
	fmt.Printf("start over-reservation test: listing=%d users=%d concurrency=%d\n", listingID, *nUsers, *concurrency)
	results := runParallel(*nUsers, *concurrency, func(i int) Result {
		tok := cl.token(middleware.Actor{UserID: uint(100000 + i), Role: middleware.RoleRecipient})
		return cl.reserve(tok, listingID, "")
	})
	printSummary("over_reservation", results)

	if b, err := cl.balance(listingID); err != nil {
		fmt.Println("balance check err:", err)
	} else {
		fmt.Printf("final balance: quantity=%d available=%d held=%d picked_up=%d status=%s\n",
			b.Quantity, b.Available, b.Held, b.PickedUp, b.Status)
		if b.Available < 0 || b.Available+b.Held+b.PickedUp != b.Quantity {
			fmt.Println("LEDGER OUT OF BALANCE")
			os.Exit(2)
		}
	}

	// 2) 幂等测试：同一收件人同一 Idempotency-Key 并发提交，只应创建一条
	fmt.Println("\nstart idempotency test: same recipient, same key, 20 requests")
	idemToken := cl.token(middleware.Actor{UserID: 90001, Role: middleware.RoleRecipient})
	idemKey := fmt.Sprintf("loadtest-%d", time.Now().UnixNano())
	results = runParallel(20, 20, func(int) Result {
		return cl.reserve(idemToken, listingID, idemKey)
	})
	printSummary("idempotency", results)

	// 3) 限流测试：同一收件人重复提交，超过 RESERVE_RATE_LIMIT 后应出现 429
	fmt.Println("\nstart rate limit test: same recipient (90002), 50 requests, concurrency 50")
	rateToken := cl.token(middleware.Actor{UserID: 90002, Role: middleware.RoleRecipient})
	results = runParallel(50, 50, func(int) Result {
		return cl.reserve(rateToken, listingID, "")
	})
	printSummary("rate_limit", results)
}

func (cl *client) token(a middleware.Actor) string {
	tok, err := middleware.IssueToken(cl.secret, a, time.Hour)
	if err != nil {
		panic(err)
	}
	return tok
}

func (cl *client) createListing(token string, quantity int64) (uint, error) {
	now := time.Now().UTC()
	res, err := cl.do(http.MethodPost, "/api/listings", token, map[string]any{
		"title":               "loadtest listing",
		"unit":                "portion",
		"quantity":            quantity,
		"expiration_date":     now.Add(24 * time.Hour),
		"pickup_window_start": now.Add(time.Hour),
		"pickup_window_end":   now.Add(6 * time.Hour),
	}, "")
	if err != nil {
		return 0, err
	}
	if res.Status != http.StatusCreated {
		return 0, fmt.Errorf("status=%d body=%s", res.Status, res.Body)
	}
	var out struct {
		Data struct {
			ID uint `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(res.Body), &out); err != nil {
		return 0, err
	}
	return out.Data.ID, nil
}

func (cl *client) reserve(token string, listingID uint, idemKey string) Result {
	res, err := cl.do(http.MethodPost, "/api/reservations", token, map[string]any{
		"listing_id":  listingID,
		"quantity":    1,
		"pickup_time": time.Now().UTC().Add(2 * time.Hour),
	}, idemKey)
	if err != nil {
		return Result{Err: err}
	}
	return res
}

type balance struct {
	Status    string `json:"status"`
	Quantity  int64  `json:"quantity"`
	Available int64  `json:"available"`
	Held      int64  `json:"held"`
	PickedUp  int64  `json:"picked_up"`
}

// balance 查询清单账目，用于压测后校验是否出现超额预约。
func (cl *client) balance(listingID uint) (balance, error) {
	res, err := cl.do(http.MethodGet, fmt.Sprintf("/api/listings/%d/balance", listingID), "", nil, "")
	if err != nil {
		return balance{}, err
	}
	if res.Status >= 300 {
		return balance{}, fmt.Errorf("status=%d body=%s", res.Status, res.Body)
	}
	var out struct {
		Data balance `json:"data"`
	}
	if err := json.Unmarshal([]byte(res.Body), &out); err != nil {
		return balance{}, err
	}
	return out.Data, nil
}

func (cl *client) do(method, path, token string, body any, idemKey string) (Result, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return Result{}, err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, cl.baseURL+path, r)
	if err != nil {
		return Result{}, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}
	resp, err := cl.http.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return Result{Status: resp.StatusCode, Body: string(b)}, nil
}

func runParallel(total, concurrency int, fn func(i int) Result) []Result {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	results := make([]Result, total)

	for i := 0; i < total; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = fn(idx)
		}(i)
	}

	wg.Wait()
	return results
}

// printSummary 聚合输出不同状态码分布。
func printSummary(name string, results []Result) {
	count := map[int]int{}
	errCount := 0
	for _, r := range results {
		if r.Err != nil {
			errCount++
			continue
		}
		count[r.Status]++
	}
	codes := make([]int, 0, len(count))
	for code := range count {
		codes = append(codes, code)
	}
	sort.Ints(codes)

	fmt.Printf("[%s] http status summary:\n", name)
	for _, code := range codes {
		fmt.Printf("  %d -> %d\n", code, count[code])
	}
	if errCount > 0 {
		fmt.Printf("  errors -> %d\n", errCount)
	}
}
