package cache

import "fmt"

func ScanKey(id int64) string {
	return fmt.Sprintf("scan:%d", id)
}

func HistoryKey(page, limit int) string {
	return fmt.Sprintf("history:%d:%d", page, limit)
}

func RateLimitKey(clientIP string) string {
	return fmt.Sprintf("ratelimit:%s", clientIP)
}
