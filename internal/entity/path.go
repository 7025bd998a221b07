package entity

const (
	DefaultDirectory = "public/system"
	DefaultVariant   = "original"
	DefaultResize    = "1920x1200>"
	MissingPrefix    = "/missing"
	NameTemp         = "tmp"
	ExtVariant       = ".png"
	EnvRoot          = "IMAGERY_ROOT"
)

const (
	ContentTypePNG    = "image/png"
	AccessPublicRead  = "public-read"
	DefaultRemoteHost = "http://s3.amazonaws.com"
)
