package types

import (
	"fmt"
	"time"

	"github.com/vladimirvivien/go4vl/v4l2"
)

type WhiteBalance string

const (
	WhiteBalanceAuto        WhiteBalance = "auto"
	WhiteBalanceDaylight    WhiteBalance = "daylight"
	WhiteBalanceCloudy      WhiteBalance = "cloudy"
	WhiteBalanceTungsten    WhiteBalance = "tungsten"
	WhiteBalanceFluorescent WhiteBalance = "fluorescent"
)

var WhiteBalanceModes = []WhiteBalance{
	WhiteBalanceAuto,
	WhiteBalanceDaylight,
	WhiteBalanceCloudy,
	WhiteBalanceTungsten,
	WhiteBalanceFluorescent,
}

func ParseWhiteBalance(s string) (WhiteBalance, error) {
	if s == "" {
		return WhiteBalanceAuto, nil
	}
	for _, m := range WhiteBalanceModes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown white balance mode %q", s)
}

// CaptureSettings is supplied by the caller and never modified during a capture.
type CaptureSettings struct {
	Width   int `json:"width"`
	Height  int `json:"height"`
	Quality int `json:"quality"`

	// ExposureTime is in microseconds; nil means automatic.
	ExposureTime *int `json:"exposure_time"`
	ISO          *int `json:"iso"`

	WhiteBalance WhiteBalance `json:"white_balance"`
	Rotation     int          `json:"rotation"`
	FlipH        bool         `json:"flip_horizontal"`
	FlipV        bool         `json:"flip_vertical"`

	Preview time.Duration `json:"-"`

	AdaptiveExposure   bool `json:"adaptive_exposure"`
	ExposureBracketing bool `json:"exposure_bracketing"`
	JSONMetadata       bool `json:"-"`
}

// Validate checks the values a camera session can be configured with.
func (s CaptureSettings) Validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("invalid resolution %dx%d", s.Width, s.Height)
	}
	if s.Quality < 1 || s.Quality > 100 {
		return fmt.Errorf("quality must be between 1 and 100, got %d", s.Quality)
	}
	switch s.Rotation {
	case 0, 90, 180, 270:
	default:
		return fmt.Errorf("rotation must be 0, 90, 180 or 270, got %d", s.Rotation)
	}
	if _, err := ParseWhiteBalance(string(s.WhiteBalance)); err != nil {
		return err
	}
	if s.ExposureTime != nil && *s.ExposureTime < 0 {
		return fmt.Errorf("exposure time can not be negative")
	}
	if s.ISO != nil && *s.ISO < 0 {
		return fmt.Errorf("iso can not be negative")
	}
	if s.Preview < 0 {
		return fmt.Errorf("preview can not be negative")
	}
	return nil
}

type LightingCondition string

const (
	ConditionVeryDark   LightingCondition = "very_dark"
	ConditionDark       LightingCondition = "dark"
	ConditionNormal     LightingCondition = "normal"
	ConditionVeryBright LightingCondition = "very_bright"
	ConditionUnknown    LightingCondition = "unknown"
)

type ExposureMode string

const (
	ExposureModeLong   ExposureMode = "long"
	ExposureModeNormal ExposureMode = "normal"
	ExposureModeShort  ExposureMode = "short"
)

type Recommendation struct {
	ExposureMode           ExposureMode `json:"exposure_mode"`
	ISOBoost               float64      `json:"iso_boost"`
	BrightnessCompensation float64      `json:"brightness_compensation"`
}

type LightingAssessment struct {
	Condition           LightingCondition `json:"condition"`
	Description         string            `json:"description"`
	Brightness          float64           `json:"brightness"`
	DarkPixelsPercent   float64           `json:"dark_pixels_percent"`
	BrightPixelsPercent float64           `json:"bright_pixels_percent"`
	Recommended         Recommendation    `json:"recommended_settings"`
}

type ImageAnalysis struct {
	Brightness float64 `json:"brightness"`
	Dimensions [2]int  `json:"dimensions"`
	Mode       string  `json:"mode"`
}

type ClockCheck struct {
	Server   string  `json:"ntp_server"`
	OffsetMs float64 `json:"offset_ms"`
}

type SystemSnapshot struct {
	DiskFree        uint64  `json:"disk_free"`
	DiskUsedPercent float64 `json:"disk_used_percent"`
	MemUsedPercent  float64 `json:"mem_used_percent"`
}

// CaptureMetadata is assembled once after the capture and written exactly once.
type CaptureMetadata struct {
	Timestamp  string              `json:"timestamp"`
	Filename   string              `json:"filename"`
	Settings   CaptureSettings     `json:"settings"`
	Lighting   *LightingAssessment `json:"lighting_analysis"`
	Camera     map[string]any      `json:"camera_metadata"`
	FinalImage *ImageAnalysis      `json:"final_image_analysis,omitempty"`
	Clock      *ClockCheck         `json:"clock,omitempty"`
	System     *SystemSnapshot     `json:"system,omitempty"`
}

type BracketCandidate struct {
	Offset            float64
	Path              string
	Brightness        float64
	ClippedHighlights float64
	ClippedShadows    float64
	Score             float64
}

// Controls is a device independent control set. Nil fields are left untouched.
type Controls struct {
	AeEnable      *bool
	ExposureValue *float64
	AnalogueGain  *float64
	// ExposureTime is in microseconds.
	ExposureTime *int
	AwbEnable    *bool
	ColourGains  *[2]float64
}

func (c Controls) IsEmpty() bool {
	return c == Controls{}
}

// Merge returns c with every non-nil field of o applied on top.
func (c Controls) Merge(o Controls) Controls {
	if o.AeEnable != nil {
		c.AeEnable = o.AeEnable
	}
	if o.ExposureValue != nil {
		c.ExposureValue = o.ExposureValue
	}
	if o.AnalogueGain != nil {
		c.AnalogueGain = o.AnalogueGain
	}
	if o.ExposureTime != nil {
		c.ExposureTime = o.ExposureTime
	}
	if o.AwbEnable != nil {
		c.AwbEnable = o.AwbEnable
	}
	if o.ColourGains != nil {
		c.ColourGains = o.ColourGains
	}
	return c
}

func (c Controls) String() string {
	s := "{"
	add := func(k string, v any) {
		if len(s) > 1 {
			s += " "
		}
		s += fmt.Sprintf("%s:%v", k, v)
	}
	if c.AeEnable != nil {
		add("AeEnable", *c.AeEnable)
	}
	if c.ExposureValue != nil {
		add("ExposureValue", *c.ExposureValue)
	}
	if c.AnalogueGain != nil {
		add("AnalogueGain", *c.AnalogueGain)
	}
	if c.ExposureTime != nil {
		add("ExposureTime", *c.ExposureTime)
	}
	if c.AwbEnable != nil {
		add("AwbEnable", *c.AwbEnable)
	}
	if c.ColourGains != nil {
		add("ColourGains", *c.ColourGains)
	}
	return s + "}"
}

// CtrlSetting is one V4L2 control write.
type CtrlSetting struct {
	ID    v4l2.CtrlID
	Value v4l2.CtrlValue
}

// CameraSettings is applied in order; auto modes must be switched off before
// their manual counterparts are written.
type CameraSettings []CtrlSetting

type File struct {
	Name    string    `json:"name"`
	Size    string    `json:"size"`
	ModTime time.Time `json:"modTime"`
}

func Ptr[T any](v T) *T {
	return &v
}
