package core

const (
	MillimetresPerInch = 25.4

	// ScreenDPI is the density the editor canvas is assumed to be drawn at.
	ScreenDPI = 96.0

	DefaultPrintDPI = 300.0
)

// ErrorCode classifies export and upload failures for clients.
type ErrorCode string

const (
	CodeZoneNotFound        ErrorCode = "ZONE_NOT_FOUND"
	CodeCloneFailure        ErrorCode = "CLONE_FAILURE"
	CodeDegenerateRaster    ErrorCode = "DEGENERATE_RASTER"
	CodeAllStrategiesFailed ErrorCode = "ALL_STRATEGIES_FAILED"
	CodeAuthExpired         ErrorCode = "AUTH_EXPIRED"
	CodePayloadTooLarge     ErrorCode = "PAYLOAD_TOO_LARGE"
	CodeNetworkUnavailable  ErrorCode = "NETWORK_UNAVAILABLE"
	CodeInvalidMultiplier   ErrorCode = "INVALID_MULTIPLIER"
	CodeUnsupportedObject   ErrorCode = "UNSUPPORTED_OBJECT"
	CodeInternal            ErrorCode = "INTERNAL"
)

// ZoneSource tells where a resolved print zone came from.
type ZoneSource string

const (
	ZoneFromServer       ZoneSource = "server"
	ZoneFromCanvas       ZoneSource = "canvas"
	ZoneFromCanvasBounds ZoneSource = "canvas-bounds"
)

type (
	// PrintZone is the printable rectangle of a view in canvas pixels.
	PrintZone struct {
		Rect     Rect       `json:"rect"`
		Rotation float64    `json:"rotation"`
		ViewID   string     `json:"viewId"`
		DPI      float64    `json:"dpi"`
		Source   ZoneSource `json:"source"`
		Safe     *Rect      `json:"safe,omitempty"`
		Physical *Rect      `json:"physical,omitempty"` // millimetres, when declared
	}

	ExportFormat string

	// ExportRequest describes one rendering of one view.
	ExportRequest struct {
		TemplateID string       `json:"templateId"`
		ViewID     string       `json:"viewId"`
		Multiplier float64      `json:"multiplier"`
		DPI        float64      `json:"dpi"`
		Format     ExportFormat `json:"format"`
		Quality    float64      `json:"quality"`
		BleedMM    float64      `json:"bleedMm"`
	}

	Warning struct {
		Code    ErrorCode `json:"code"`
		Message string    `json:"message"`
	}

	// ExportResult is the outcome of rendering one view. It is not modified
	// after the renderer returns it.
	ExportResult struct {
		DataURL      string    `json:"dataUrl"`
		PixelWidth   int       `json:"pixelWidth"`
		PixelHeight  int       `json:"pixelHeight"`
		DPI          float64   `json:"dpi"`
		ElementCount int       `json:"elementCount"`
		StrategyUsed string    `json:"strategyUsed"`
		ViewID       string    `json:"viewId"`
		TemplateID   string    `json:"templateId"`
		Degraded     bool      `json:"degraded"`
		Warnings     []Warning `json:"warnings,omitempty"`
		ByteSize     int       `json:"byteSize"`
	}
)

const (
	FormatPNG  ExportFormat = "png"
	FormatJPEG ExportFormat = "jpeg"
)

// MIMEType returns the media type of the encoded raster.
func (f ExportFormat) MIMEType() string {
	if f == FormatJPEG {
		return "image/jpeg"
	}
	return "image/png"
}
