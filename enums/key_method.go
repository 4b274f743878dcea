package enums

type KeyMethod string

const (
	KeyMethodNone   KeyMethod = "none"
	KeyMethodAES128 KeyMethod = "aes-128"
)
