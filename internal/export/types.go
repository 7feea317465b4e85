package export

// Request selects the title and rate of an EDL of the main track. When
// OutputDir is set the EDL is also written there.
type Request struct {
	ProjectName string  `json:"project_name"`
	FrameRate   float64 `json:"frame_rate"`
	OutputDir   string  `json:"output_dir,omitempty"`
}

// Event is one EDL edit: a source range recorded at a timeline range.
type Event struct {
	PlacementID string
	ClipName    string
	MediaPath   string
	SourceIn    float64
	SourceOut   float64
	RecordIn    float64
	RecordOut   float64
}

type Response struct {
	Status           string   `json:"status"`
	Format           string   `json:"format"`
	OutputPath       string   `json:"output_path,omitempty"`
	EventCount       int      `json:"event_count"`
	BrokenPlacements []string `json:"broken_placements"`
	EDL              string   `json:"edl"`
}
