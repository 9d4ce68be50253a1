package model

import "time"

// ProfileView is one counted view of a biodata.  ViewerKey is "u:<id>" for
// authenticated viewers and "ip:<address>" for anonymous ones.
type ProfileView struct {
	ID        uint64    `json:"id"`
	BiodataID uint64    `json:"biodata_id"`
	ViewerID  *uint64   `json:"viewer_id,omitempty"`
	ViewerKey string    `json:"-"`
	IPAddress *string   `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent"`
	ViewedAt  time.Time `json:"viewed_at"`
}

// ViewResult reports whether a tracked view was counted and why.
type ViewResult struct {
	Counted bool   `json:"counted"`
	Reason  string `json:"reason"`
}

// ProfileViewStats summarises the views of a user's own biodata.
type ProfileViewStats struct {
	TotalViews     int64 `json:"total_views"`
	RecentViews    int64 `json:"recent_views"`
	ViewsThisMonth int64 `json:"views_this_month"`
}
