package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// GetClientIP determines the client address behind Cloudflare or a reverse
// proxy. It returns the IPv4 and the IPv6 address when both are known.
func GetClientIP(c *fiber.Ctx) (string, string) {
	var ipv4, ipv6 string
	assign := func(ip string) {
		ip = strings.TrimSpace(ip)
		if ip == "" {
			return
		}
		if strings.Contains(ip, ":") {
			if strings.HasPrefix(ip, "::ffff:") && strings.Contains(ip, ".") {
				if ipv4 == "" {
					ipv4 = strings.TrimPrefix(ip, "::ffff:")
				}
				return
			}
			if ipv6 == "" {
				ipv6 = ip
			}
			return
		}
		if ipv4 == "" {
			ipv4 = ip
		}
	}

	if cfIP := c.Get("CF-Connecting-IP"); cfIP != "" {
		assign(cfIP)
		for _, ip := range strings.Split(c.Get("X-Forwarded-For"), ",") {
			assign(ip)
		}
		return ipv4, ipv6
	}
	// The first entry of X-Forwarded-For is the original client.
	if xff := c.Get("X-Forwarded-For"); xff != "" {
		for _, ip := range strings.Split(xff, ",") {
			assign(ip)
		}
		if ipv4 != "" || ipv6 != "" {
			return ipv4, ipv6
		}
	}

	assign(c.IP())
	assign(c.Get("X-Real-IP"))
	return ipv4, ipv6
}
