package quantize

import "fmt"

func errNoSamples() error            { return fmt.Errorf("quantize: no training samples accumulated") }
func errBlobTooShort(kind string) error { return fmt.Errorf("quantize: %s blob too short", kind) }
func errBlobTruncated(kind string) error { return fmt.Errorf("quantize: %s blob truncated", kind) }
