package transfer

import "github.com/maheshrc27/nextpost/internal/platform"

type AccountCapabilities struct {
	AccountID   int64          `json:"account_id"`
	Platform    platform.Kind  `json:"platform"`
	DisplayName string         `json:"display_name"`
	Publishable bool           `json:"publishable"`
	Rules       platform.Rules `json:"rules"`
}

type ConnectionTest struct {
	OK      bool           `json:"ok"`
	Details map[string]any `json:"details,omitempty"`
	Error   string         `json:"error,omitempty"`
}
