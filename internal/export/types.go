package export

// Export formats.
const (
	FormatEDL = "edl"
	FormatSRT = "srt"
)

// DefaultFrameRate is used when a request names none.
const DefaultFrameRate = 30.0

// Request asks for an export of one video's shorts. OutputDir is only used
// when the export is written to disk.
type Request struct {
	VideoID   string  `json:"video_id"`
	Format    string  `json:"format"`
	FrameRate float64 `json:"frame_rate"`
	OutputDir string  `json:"output_dir,omitempty"`
}

// Clip is one EDL event: a segment of the source video.
type Clip struct {
	ShortID   string
	Name      string
	MediaPath string
	StartMs   int
	EndMs     int
}

// Cue is one SubRip subtitle.
type Cue struct {
	StartMs int
	EndMs   int
	Text    string
}

// Result is a rendered export.
type Result struct {
	Format      string `json:"format"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Count       int    `json:"count"`
	Body        []byte `json:"-"`
}

// Response reports an export written to disk.
type Response struct {
	Status     string `json:"status"`
	Format     string `json:"format"`
	OutputPath string `json:"output_path"`
	Count      int    `json:"count"`
}
