package rest

import "strings"

func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "10006") || strings.Contains(msg, "Too many visits")
}

func IsOrderNotExist(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "170213") || strings.Contains(msg, "Order does not exist")
}

func IsDuplicateLinkID(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "170141") || strings.Contains(msg, "Duplicate clientOrderId")
}
