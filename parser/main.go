package parser

import (
	"fmt"
	"net/url"
	"strings"

	"streamcore/models"
	"streamcore/util"
)

func resolveURL(base *url.URL, uri string) string {
	if strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://") {
		return uri
	}
	ref, err := url.Parse(uri)
	if err != nil {
		return uri
	}
	return base.ResolveReference(ref).String()
}

// validateManifest enforces the invariants every parser output must
// hold: at least one segment and strictly increasing sequence numbers.
func validateManifest(manifest *models.StreamManifest) error {
	if len(manifest.Segments) == 0 {
		return util.ErrEmptyManifest
	}
	previous := manifest.Segments[0].Sequence
	for _, segment := range manifest.Segments[1:] {
		if segment.Sequence <= previous {
			return fmt.Errorf(
				"%w: sequence %d follows %d",
				util.ErrMalformedManifest, segment.Sequence, previous,
			)
		}
		previous = segment.Sequence
	}
	return nil
}
