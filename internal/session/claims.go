package session

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"certdash/internal/core"
)

// ParseClaims reads identity claims from a JWT without verifying its
// signature. Opaque tokens yield a consumer with no expiry.
func ParseClaims(token string) (Claims, time.Time) {
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mc); err != nil {
		return Claims{UserType: core.UserConsumer}, time.Time{}
	}

	c := Claims{UserType: core.UserConsumer}
	if sub, err := mc.GetSubject(); err == nil {
		c.UserID = sub
	}
	c.Email, _ = mc["email"].(string)
	c.Name, _ = mc["name"].(string)
	if ut, ok := userTypeClaim(mc["userType"]); ok {
		c.UserType = ut
	}

	var exp time.Time
	if e, err := mc.GetExpirationTime(); err == nil && e != nil {
		exp = e.Time
	}
	return c, exp
}

func userTypeClaim(v any) (core.UserType, bool) {
	var n int
	switch t := v.(type) {
	case float64:
		n = int(t)
	case string:
		i, err := strconv.Atoi(t)
		if err != nil {
			if t == "business" {
				return core.UserBusiness, true
			}
			return 0, false
		}
		n = i
	default:
		return 0, false
	}
	switch core.UserType(n) {
	case core.UserConsumer, core.UserBusiness:
		return core.UserType(n), true
	}
	return 0, false
}
