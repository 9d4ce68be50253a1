package model

import "time"

// Biodata statuses.  Only Active records are listed publicly and can be
// purchased.
const (
	BiodataPending  = "Pending"
	BiodataActive   = "Active"
	BiodataInactive = "Inactive"
	BiodataRejected = "Rejected"
)

// ValidBiodataStatus reports whether s is one of the known statuses.
func ValidBiodataStatus(s string) bool {
	switch s {
	case BiodataPending, BiodataActive, BiodataInactive, BiodataRejected:
		return true
	}
	return false
}

// Biodata is a matrimonial profile as stored in the `biodata` table.  A user
// owns at most one.  Email, OwnMobile and GuardianMobile are private contact
// fields; use PublicBiodata when rendering for anyone but the owner.
type Biodata struct {
	ID             uint64     `json:"id"`
	UserID         *uint64    `json:"user_id"`
	FullName       string     `json:"full_name"`
	Gender         string     `json:"gender"`
	DateOfBirth    *time.Time `json:"date_of_birth,omitempty"`
	MaritalStatus  string     `json:"marital_status"`
	Religion       string     `json:"religion"`
	Occupation     string     `json:"occupation"`
	Education      string     `json:"education"`
	District       string     `json:"district"`
	About          string     `json:"about"`
	Email          string     `json:"email"`
	OwnMobile      string     `json:"own_mobile"`
	GuardianMobile string     `json:"guardian_mobile"`
	Status         string     `json:"status"`
	ViewCount      int64      `json:"view_count"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// OwnedBy reports whether userID owns the record.
func (b *Biodata) OwnedBy(userID uint64) bool {
	return b.UserID != nil && *b.UserID == userID
}

// PublicBiodata is the listing and profile projection.  It has no contact
// fields and no owner id.
type PublicBiodata struct {
	ID            uint64     `json:"id"`
	FullName      string     `json:"full_name"`
	Gender        string     `json:"gender"`
	DateOfBirth   *time.Time `json:"date_of_birth,omitempty"`
	MaritalStatus string     `json:"marital_status"`
	Religion      string     `json:"religion"`
	Occupation    string     `json:"occupation"`
	Education     string     `json:"education"`
	District      string     `json:"district"`
	About         string     `json:"about"`
	ViewCount     int64      `json:"view_count"`
}

// Public returns the public projection of b.
func (b *Biodata) Public() PublicBiodata {
	return PublicBiodata{
		ID:            b.ID,
		FullName:      b.FullName,
		Gender:        b.Gender,
		DateOfBirth:   b.DateOfBirth,
		MaritalStatus: b.MaritalStatus,
		Religion:      b.Religion,
		Occupation:    b.Occupation,
		Education:     b.Education,
		District:      b.District,
		About:         b.About,
		ViewCount:     b.ViewCount,
	}
}

// ContactInfo is the set of fields unlocked by a purchase.
type ContactInfo struct {
	Email          string `json:"email"`
	OwnMobile      string `json:"own_mobile"`
	GuardianMobile string `json:"guardian_mobile"`
}

// ContactProjection is the only shape in which contact fields leave the
// contact access path.
type ContactProjection struct {
	ID             uint64 `json:"id"`
	FullName       string `json:"full_name"`
	Email          string `json:"email"`
	OwnMobile      string `json:"own_mobile"`
	GuardianMobile string `json:"guardian_mobile"`
}

// Contact returns the narrowed contact projection of b.
func (b *Biodata) Contact() ContactProjection {
	return ContactProjection{
		ID:             b.ID,
		FullName:       b.FullName,
		Email:          b.Email,
		OwnMobile:      b.OwnMobile,
		GuardianMobile: b.GuardianMobile,
	}
}

// BiodataFilter narrows the public listing.
type BiodataFilter struct {
	Gender   string
	Religion string
	District string
	Limit    int
	Offset   int
}
