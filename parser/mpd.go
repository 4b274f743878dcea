package parser

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"streamcore/enums"
	"streamcore/models"
	"streamcore/util"

	"github.com/unki2aut/go-mpd"
	"github.com/unki2aut/go-xsd-types"
	"go.uber.org/zap"
)

var segmentTemplateRE = regexp.MustCompile(`\$([A-Za-z]+)(?:\%0(\d+)d)?\$`)

// MPDOptions steers representation selection and key delivery for an
// MPD presentation. License handling belongs to the surrounding client,
// so it can hand the key material in directly (Key) or point the
// resolver at a ClearKey license endpoint (KeyURI).
type MPDOptions struct {
	RepresentationID string // empty selects the first usable representation
	KeyURI           string
	Key              []byte
}

// ParseMPDManifest builds a StreamManifest for one representation of an
// XML presentation description.
func ParseMPDManifest(content []byte, baseURL string, opts *MPDOptions) (*models.StreamManifest, error) {
	if opts == nil {
		opts = &MPDOptions{}
	}
	baseURLObj, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base URL %q: %v", util.ErrMalformedManifest, baseURL, err)
	}

	mpdDoc := &mpd.MPD{}
	if err := mpdDoc.Decode(content); err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrMalformedManifest, err)
	}
	zap.S().Debug("detected mpd manifest")

	if len(mpdDoc.Period) == 0 {
		return nil, fmt.Errorf("%w: no periods found in mpd", util.ErrMalformedManifest)
	}

	// process first period (most common case)
	period := mpdDoc.Period[0]
	if len(period.AdaptationSets) == 0 {
		return nil, fmt.Errorf("%w: no adaptation sets found in period", util.ErrMalformedManifest)
	}

	mpdBaseURL := resolveMPDBaseURL(baseURLObj, mpdDoc.BaseURL)
	periodBaseURL := resolveMPDBaseURL(mpdBaseURL, period.BaseURL)

	adaptationSet, representation, err := selectRepresentation(period.AdaptationSets, opts.RepresentationID)
	if err != nil {
		return nil, err
	}

	keyRef, err := parseContentProtection(adaptationSet, representation, opts)
	if err != nil {
		return nil, err
	}

	representationBaseURL := resolveMPDBaseURL(periodBaseURL, representation.BaseURL)
	segmentTemplate := getSegmentTemplate(representation, adaptationSet)
	if segmentTemplate == nil || segmentTemplate.Media == nil {
		return nil, fmt.Errorf("%w: representation has no segment template", util.ErrUnsupportedFeature)
	}

	manifest, err := buildTemplateManifest(
		segmentTemplate, *representation,
		representationBaseURL, mpdDoc, keyRef,
	)
	if err != nil {
		return nil, err
	}
	if err := validateManifest(manifest); err != nil {
		return nil, err
	}
	zap.S().Debugf("parsed mpd representation %s: %d segments", *representation.ID, len(manifest.Segments))
	return manifest, nil
}

func selectRepresentation(
	adaptationSets []*mpd.AdaptationSet,
	representationID string,
) (*mpd.AdaptationSet, *mpd.Representation, error) {
	for _, adaptationSet := range adaptationSets {
		if adaptationSet == nil {
			continue
		}
		for i := range adaptationSet.Representations {
			representation := &adaptationSet.Representations[i]
			if representation.ID == nil {
				continue
			}
			if representationID == "" || *representation.ID == representationID {
				return adaptationSet, representation, nil
			}
		}
	}
	if representationID != "" {
		return nil, nil, fmt.Errorf(
			"%w: representation %q not found",
			util.ErrMalformedManifest, representationID,
		)
	}
	return nil, nil, fmt.Errorf("%w: no usable representation", util.ErrMalformedManifest)
}

func buildTemplateManifest(
	segmentTemplate *mpd.SegmentTemplate,
	representation mpd.Representation,
	baseURL *url.URL,
	mpdDoc *mpd.MPD,
	keyRef *models.KeyRef,
) (*models.StreamManifest, error) {
	startNumber := uint64(1)
	if segmentTemplate.StartNumber != nil {
		startNumber = *segmentTemplate.StartNumber
	}

	manifest := &models.StreamManifest{
		MediaSequence: int64(startNumber),
		TotalDuration: totalDuration(mpdDoc.MediaPresentationDuration),
	}

	if segmentTemplate.Initialization != nil {
		initURL := expandSegmentTemplate(*segmentTemplate.Initialization, representation, 0, 0)
		manifest.Init = &models.SegmentDescriptor{
			Index: -1,
			URL:   resolveURL(baseURL, initURL),
		}
	}

	timescale := uint64(1)
	if segmentTemplate.Timescale != nil {
		timescale = *segmentTemplate.Timescale
	}

	appendSegment := func(number uint64, start, duration uint64) {
		index := len(manifest.Segments)
		mediaURL := expandSegmentTemplate(*segmentTemplate.Media, representation, number, start)
		manifest.Segments = append(manifest.Segments, &models.SegmentDescriptor{
			Index:    index,
			Sequence: int64(number),
			URL:      resolveURL(baseURL, mediaURL),
			Key:      keyRef,
			Duration: time.Duration(float64(duration) / float64(timescale) * float64(time.Second)),
		})
	}

	if segmentTemplate.SegmentTimeline != nil {
		// timeline-based segments
		segmentNumber := startNumber
		var currentTime uint64
		for _, s := range segmentTemplate.SegmentTimeline.S {
			if s.T != nil {
				currentTime = *s.T
			}
			repeatCount := int64(0)
			if s.R != nil {
				repeatCount = *s.R
			}
			for i := int64(0); i <= repeatCount; i++ {
				appendSegment(segmentNumber, currentTime, s.D)
				currentTime += s.D
				segmentNumber++
			}
		}
		zap.S().Debugf("extracted %d timeline segments", len(manifest.Segments))
	} else {
		// template-based segments
		segmentCount, segmentDuration := calculateSegmentCount(segmentTemplate, mpdDoc)
		for i := 0; i < segmentCount; i++ {
			appendSegment(startNumber+uint64(i), 0, segmentDuration)
		}
		zap.S().Debugf("extracted %d template segments", len(manifest.Segments))
	}

	return manifest, nil
}

func calculateSegmentCount(segmentTemplate *mpd.SegmentTemplate, mpdDoc *mpd.MPD) (int, uint64) {
	totalDurationSeconds := totalDuration(mpdDoc.MediaPresentationDuration).Seconds()

	var segmentDuration uint64
	segmentDurationSeconds := 10.0 // default
	if segmentTemplate.Duration != nil && segmentTemplate.Timescale != nil {
		segmentDuration = *segmentTemplate.Duration
		segmentDurationSeconds = float64(*segmentTemplate.Duration) / float64(*segmentTemplate.Timescale)
	} else if segmentTemplate.Duration != nil {
		segmentDuration = *segmentTemplate.Duration
		segmentDurationSeconds = float64(*segmentTemplate.Duration)
	}

	if totalDurationSeconds > 0 && segmentDurationSeconds > 0 {
		count := int(math.Ceil(totalDurationSeconds / segmentDurationSeconds))
		zap.S().Debugf("total duration: %.1fs, segment duration: %.4fs, segment count: %d",
			totalDurationSeconds, segmentDurationSeconds, count)
		return count, segmentDuration
	}
	return 1, segmentDuration
}

func expandSegmentTemplate(template string, representation mpd.Representation, number, time uint64) string {
	return segmentTemplateRE.ReplaceAllStringFunc(template, func(match string) string {
		submatch := segmentTemplateRE.FindStringSubmatch(match)
		if len(submatch) < 2 {
			return match
		}

		identifier := submatch[1]
		width := 0
		if len(submatch) > 2 && submatch[2] != "" {
			width, _ = strconv.Atoi(submatch[2])
		}

		switch identifier {
		case "RepresentationID":
			if representation.ID != nil {
				return *representation.ID
			}
		case "Number":
			if width > 0 {
				return fmt.Sprintf("%0*d", width, number)
			}
			return strconv.FormatUint(number, 10)
		case "Time":
			if width > 0 {
				return fmt.Sprintf("%0*d", width, time)
			}
			return strconv.FormatUint(time, 10)
		case "Bandwidth":
			if representation.Bandwidth != nil {
				return strconv.FormatUint(*representation.Bandwidth, 10)
			}
		}
		return match
	})
}

// parseContentProtection maps cenc/clearkey protection descriptors to a
// KeyRef. Other DRM systems are surfaced as unsupported rather than
// silently ignored.
func parseContentProtection(
	adaptationSet *mpd.AdaptationSet,
	representation *mpd.Representation,
	opts *MPDOptions,
) (*models.KeyRef, error) {
	protections := adaptationSet.ContentProtections
	if len(representation.ContentProtections) > 0 {
		protections = representation.ContentProtections
	}
	if len(protections) == 0 {
		return nil, nil
	}

	for _, protection := range protections {
		scheme := ""
		if protection.SchemeIDURI != nil {
			scheme = strings.ToLower(*protection.SchemeIDURI)
		}
		// the standard mp4protection descriptor names no key system in
		// its scheme URI; the cenc:default_KID attribute is the signal
		if !strings.Contains(scheme, "cenc") &&
			!strings.Contains(scheme, "clearkey") &&
			protection.CencDefaultKeyId == nil {
			continue
		}

		ref := &models.KeyRef{
			Method: enums.KeyMethodAES128,
			URI:    opts.KeyURI,
			Key:    opts.Key,
		}
		if protection.CencDefaultKeyId != nil {
			ref.ID = strings.ToLower(strings.ReplaceAll(*protection.CencDefaultKeyId, "-", ""))
		}
		return ref, nil
	}

	return nil, fmt.Errorf("%w: unsupported content protection scheme", util.ErrUnsupportedFeature)
}

func totalDuration(duration *xsd.Duration) time.Duration {
	if duration == nil {
		return 0
	}
	var total float64
	total += float64(duration.Hours) * 3600
	total += float64(duration.Minutes) * 60
	total += float64(duration.Seconds)
	return time.Duration(total * float64(time.Second))
}

func getSegmentTemplate(representation *mpd.Representation, adaptationSet *mpd.AdaptationSet) *mpd.SegmentTemplate {
	if representation.SegmentTemplate != nil {
		return representation.SegmentTemplate
	}
	return adaptationSet.SegmentTemplate
}

func resolveMPDBaseURL(baseURL *url.URL, baseURLs []*mpd.BaseURL) *url.URL {
	if len(baseURLs) > 0 && baseURLs[0] != nil && baseURLs[0].Value != "" {
		if resolved, err := url.Parse(baseURLs[0].Value); err == nil {
			return baseURL.ResolveReference(resolved)
		}
	}
	return baseURL
}
