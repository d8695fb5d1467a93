package release

var (
	ValidateS3      = validateS3
	NormalizePrefix = normalizePrefix
)
