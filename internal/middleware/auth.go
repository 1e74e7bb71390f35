package middleware

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

type Role string

const (
	RoleProvider  Role = "provider"
	RoleRecipient Role = "recipient"
	RoleAdmin     Role = "admin"
)

// actorKey is the gin context key holding the authenticated *Actor.
const actorKey = "food_rescue.actor"

// Actor is the caller behind a request.
type Actor struct {
	UserID     uint
	Role       Role
	ProviderID uint
}

// Claims carried by bearer tokens. sub holds the user id.
type Claims struct {
	Role       Role `json:"role"`
	ProviderID uint `json:"provider_id,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for the actor.
func IssueToken(secret []byte, a Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role:       a.Role,
		ProviderID: a.ProviderID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(a.UserID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseToken validates a token and returns its actor.
func ParseToken(secret []byte, tokenString string) (*Actor, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token is not valid")
	}

	userID, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || userID == 0 {
		return nil, errors.New("token subject is not a user id")
	}
	switch claims.Role {
	case RoleProvider:
		if claims.ProviderID == 0 {
			return nil, errors.New("provider token without provider_id")
		}
	case RoleRecipient, RoleAdmin:
	default:
		return nil, fmt.Errorf("unknown role %q", claims.Role)
	}
	return &Actor{UserID: uint(userID), Role: claims.Role, ProviderID: claims.ProviderID}, nil
}

// Authenticate 解析 Authorization: Bearer 头并把 Actor 放进上下文。
// 没有头的请求直接放行（公开接口），头格式错误或 token 无效返回 401。
func Authenticate(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}
		parts := strings.Fields(header)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortUnauthenticated(c, "authorization header must be 'Bearer <token>'")
			return
		}
		actor, err := ParseToken(secret, parts[1])
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				abortUnauthenticated(c, "token has expired")
				return
			}
			abortUnauthenticated(c, "token is invalid")
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

// RequireActor 要求已认证；传入 roles 时还要求角色匹配。
func RequireActor(roles ...Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			abortUnauthenticated(c, "authentication required")
			return
		}
		if len(roles) > 0 && !actor.Is(roles...) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":   http.StatusForbidden,
				"msg":    "role not allowed",
				"reason": "unauthorized",
			})
			return
		}
		c.Next()
	}
}

// AdminToken 通过 X-Admin-Token 保护运维接口。
func AdminToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader("X-Admin-Token")
		if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":   http.StatusForbidden,
				"msg":    "forbidden",
				"reason": "unauthorized",
			})
			return
		}
		c.Next()
	}
}

func ActorFrom(c *gin.Context) (*Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return nil, false
	}
	a, ok := v.(*Actor)
	return a, ok
}

func (a *Actor) Is(roles ...Role) bool {
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}

func abortUnauthenticated(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code":   http.StatusUnauthorized,
		"msg":    msg,
		"reason": "unauthenticated",
	})
}
