package service

import (
	"crypto/rand"
	"time"
)

const orderNoAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// promo codes skip characters that read ambiguously (0/O, 1/I)
const promoAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// generateOrderNo builds the externally visible order number:
// ORD<timestamp><6 random chars>. Uniqueness is enforced by the orders
// unique index, not by this function.
func generateOrderNo() string {
	return "ORD" + time.Now().Format("20060102150405") + randomString(orderNoAlphabet, 6)
}

func generatePromoCode() string {
	return randomString(promoAlphabet, 12)
}

func randomString(alphabet string, n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(err) // crypto/rand failure means the platform is broken
	}

	out := make([]byte, n)
	for i, b := range buf {
		out[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(out)
}
