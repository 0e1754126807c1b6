package client

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"
)

// Sign computes the gateway request signature: selected params sorted by
// key, joined as key=value pairs with '&', then '&key=<secret>' appended,
// MD5-hashed and rendered as uppercase hex.
//
// When mandatoryKeys is non-empty only those keys participate (the gateway
// signs mandatory parameters only); otherwise every non-empty parameter
// except the sign field itself participates.
func Sign(params map[string]string, mandatoryKeys []string, secret string) string {
	selected := make(map[string]string, len(params))
	if len(mandatoryKeys) > 0 {
		for _, k := range mandatoryKeys {
			if v, ok := params[k]; ok && v != "" {
				selected[k] = v
			}
		}
	} else {
		for k, v := range params {
			if k == "sign" || v == "" {
				continue
			}
			selected[k] = v
		}
	}

	keys := make([]string, 0, len(selected))
	for k := range selected {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(selected[k])
		sb.WriteByte('&')
	}
	sb.WriteString("key=")
	sb.WriteString(secret)

	sum := md5.Sum([]byte(sb.String()))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// VerifySign recomputes the signature over all non-empty params excluding
// the transmitted sign field and compares it case-insensitively.
func VerifySign(params map[string]string, secret string) bool {
	received := params["sign"]
	if received == "" {
		return false
	}
	expected := Sign(params, nil, secret)
	return strings.EqualFold(expected, received)
}
