package cloud

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ID is a backend identifier. The backend emits integer primary keys but
// some deployments return strings, so both decode to the same value.
type ID string

// UnmarshalJSON accepts a JSON string, number or null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return fmt.Errorf("decode id %s: %w", data, err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// User is the backend profile of the logged-in account.
type User struct {
	ID           ID     `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	ProfileImage string `json:"profile_image,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
}

// AuthResponse is returned by login and register.
type AuthResponse struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

// Registration is the body of POST /auth/register/.
type Registration struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Password2 string `json:"password2"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// ProfileUpdate carries the editable profile fields. Empty fields are omitted.
type ProfileUpdate struct {
	Username  string `json:"username,omitempty"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// Video status values reported by the backend.
const (
	VideoStatusUploaded   = "uploaded"
	VideoStatusProcessing = "processing"
	VideoStatusReady      = "ready"
	VideoStatusFailed     = "failed"
)

// Video is an uploaded source video.
type Video struct {
	ID              ID      `json:"id"`
	FileName        string  `json:"file_name"`
	FileURL         string  `json:"file_url"`
	DurationSeconds float64 `json:"duration_seconds"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	AspectRatio     string  `json:"aspect_ratio"`
	FileSize        int64   `json:"file_size"`
	Status          string  `json:"status"`
	CreatedAt       string  `json:"created_at"`
}

// VideoStatus is the processing state of an uploaded video.
type VideoStatus struct {
	Status   string  `json:"status"`
	Progress float64 `json:"progress"`
}

// UploadResponse is the body returned after an upload. Deployments differ in
// whether they name the identifier id or video_id.
type UploadResponse struct {
	ID       ID     `json:"id"`
	VideoID  ID     `json:"video_id"`
	FileName string `json:"file_name,omitempty"`
	Status   string `json:"status,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Identifier returns the job identifier, or "" when the response has none.
// A zero identifier counts as none.
func (r UploadResponse) Identifier() ID {
	for _, id := range []ID{r.ID, r.VideoID} {
		if id != "" && id != "0" {
			return id
		}
	}
	return ""
}

// Short status values reported by the backend.
const (
	ShortStatusGenerating = "generating"
	ShortStatusReady      = "ready"
	ShortStatusFailed     = "failed"
)

// Short is one generated vertical clip.
type Short struct {
	ID              ID      `json:"id"`
	FileURL         string  `json:"file_url"`
	CoverURL        string  `json:"cover_url"`
	StartSecond     float64 `json:"start_second"`
	EndSecond       float64 `json:"end_second"`
	DurationSeconds float64 `json:"duration_seconds"`
	Status          string  `json:"status"`
	Video           ID      `json:"video"`
	VideoTitle      string  `json:"video_title"`
	CreatedAt       string  `json:"created_at"`
}

// Duration returns the clip length, derived from the segment when the
// backend omits duration_seconds.
func (s Short) Duration() float64 {
	if s.DurationSeconds > 0 {
		return s.DurationSeconds
	}
	if d := s.EndSecond - s.StartSecond; d > 0 {
		return d
	}
	return 0
}

type videoPage struct {
	Results []Video `json:"results"`
}

type shortPage struct {
	Results []Short `json:"results"`
}

type shortsByVideoPage struct {
	Shorts []Short `json:"shorts"`
}
