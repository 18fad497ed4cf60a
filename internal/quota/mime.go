package quota

// DefaultAllowedMIMEs is the whitelist applied when ENFORCE_MIME_WHITELIST is on.
var DefaultAllowedMIMEs = []string{
	// images
	"image/jpeg",
	"image/jpg",
	"image/png",
	"image/gif",
	"image/webp",
	"image/svg+xml",
	"image/bmp",
	"image/tiff",

	"application/pdf",

	// office
	"application/msword",
	"application/vnd.ms-excel",
	"application/vnd.ms-powerpoint",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",

	// CAD
	"application/acad",
	"application/x-acad",
	"application/autocad_dwg",
	"application/dwg",
	"application/x-dwg",
	"application/x-autocad",
	"application/dxf",

	// archives
	"application/zip",
	"application/x-zip-compressed",
	"application/x-rar-compressed",
	"application/x-7z-compressed",
	"application/gzip",

	// video
	"video/mp4",
	"video/mpeg",
	"video/quicktime",
	"video/x-msvideo",
	"video/webm",

	"text/plain",
	"text/csv",
}

// MIMESet builds the lookup form used by upload.QuotaConfig.
func MIMESet(types []string) map[string]struct{} {
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return set
}
