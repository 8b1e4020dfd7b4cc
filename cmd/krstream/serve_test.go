package main

import "testing"

func TestTelegramHealthURL(t *testing.T) {
	tests := []struct {
		endpoint string
		want     string
	}{
		{"", "https://api.telegram.org"},
		{"http://localhost:8081/bot%s/%s", "http://localhost:8081"},
		{"https://tg.internal:8443/bot%s/%s", "https://tg.internal:8443"},
		{"%s", "https://api.telegram.org"},
	}

	for _, tt := range tests {
		if got := telegramHealthURL(tt.endpoint); got != tt.want {
			t.Errorf("telegramHealthURL(%q): хотели %q, получили %q", tt.endpoint, tt.want, got)
		}
	}
}
