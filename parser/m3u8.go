package parser

import (
	"bytes"
	"fmt"
	"net/url"
	"time"

	"streamcore/enums"
	"streamcore/models"
	"streamcore/util"

	"github.com/grafov/m3u8"
	"go.uber.org/zap"
)

// M3U8Variant is one entry of a master playlist's rendition ladder.
// Picking one is the caller's decision; the chosen variant's playlist is
// then parsed with ParseM3U8Manifest.
type M3U8Variant struct {
	URL        string
	Bandwidth  int64
	Resolution string
	Codecs     string
}

// ParseM3U8Manifest builds a StreamManifest from a media playlist.
// Master playlists are rejected with ErrMasterPlaylist; use
// ListM3U8Variants to enumerate them first.
func ParseM3U8Manifest(content []byte, baseURL string) (*models.StreamManifest, error) {
	baseURLObj, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base url: %v", util.ErrMalformedManifest, err)
	}

	buf := bytes.NewBuffer(content)
	playlist, listType, err := m3u8.DecodeFrom(buf, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrMalformedManifest, err)
	}

	switch listType {
	case m3u8.MASTER:
		return nil, util.ErrMasterPlaylist
	case m3u8.MEDIA:
		return parseMediaPlaylist(playlist.(*m3u8.MediaPlaylist), baseURLObj)
	}
	return nil, fmt.Errorf("%w: unknown playlist type", util.ErrUnsupportedFeature)
}

func parseMediaPlaylist(
	playlist *m3u8.MediaPlaylist,
	baseURL *url.URL,
) (*models.StreamManifest, error) {
	manifest := &models.StreamManifest{
		MediaSequence:  int64(playlist.SeqNo),
		TargetDuration: time.Duration(playlist.TargetDuration * float64(time.Second)),
		Segments:       make([]*models.SegmentDescriptor, 0, len(playlist.Segments)),
	}

	if playlist.Map != nil && playlist.Map.URI != "" {
		manifest.Init = &models.SegmentDescriptor{
			Index: -1,
			URL:   resolveURL(baseURL, playlist.Map.URI),
		}
	}

	currentKey := playlist.Key
	pendingDiscontinuity := false
	var totalDuration float64

	for _, segment := range playlist.Segments {
		if segment == nil || segment.URI == "" {
			continue
		}
		if segment.Key != nil {
			currentKey = segment.Key
		}
		if segment.Discontinuity {
			pendingDiscontinuity = true
		}

		keyRef, err := parseSegmentKey(currentKey)
		if err != nil {
			return nil, err
		}

		index := len(manifest.Segments)
		descriptor := &models.SegmentDescriptor{
			Index:         index,
			Sequence:      manifest.MediaSequence + int64(index),
			URL:           resolveURL(baseURL, segment.URI),
			Key:           keyRef,
			Duration:      time.Duration(segment.Duration * float64(time.Second)),
			Discontinuity: pendingDiscontinuity,
		}
		if segment.Limit > 0 {
			descriptor.RangeStart = segment.Offset
			descriptor.RangeLength = segment.Limit
		}
		manifest.Segments = append(manifest.Segments, descriptor)

		pendingDiscontinuity = false
		totalDuration += segment.Duration
	}

	manifest.TotalDuration = time.Duration(totalDuration * float64(time.Second))
	if err := validateManifest(manifest); err != nil {
		return nil, err
	}
	zap.S().Debugf("parsed media playlist: %d segments", len(manifest.Segments))
	return manifest, nil
}

// parseSegmentKey maps an EXT-X-KEY tag to a KeyRef. The key URI doubles
// as the cache identifier, so segments sharing a key resolve it once.
func parseSegmentKey(key *m3u8.Key) (*models.KeyRef, error) {
	if key == nil || key.Method == "" || key.Method == "NONE" {
		return nil, nil
	}
	switch key.Method {
	case "AES-128":
	case "SAMPLE-AES":
		return nil, fmt.Errorf("%w: SAMPLE-AES encryption", util.ErrUnsupportedFeature)
	default:
		return nil, fmt.Errorf("%w: encryption method %s", util.ErrUnsupportedFeature, key.Method)
	}

	ref := &models.KeyRef{
		Method: enums.KeyMethodAES128,
		ID:     key.URI,
		URI:    key.URI,
	}
	if key.IV != "" {
		iv, err := util.ParseHex(key.IV)
		if err != nil {
			return nil, fmt.Errorf("%w: bad key IV: %v", util.ErrMalformedManifest, err)
		}
		ref.IV = iv
	}
	return ref, nil
}

// ListM3U8Variants enumerates the rendition ladder of a master playlist.
func ListM3U8Variants(content []byte, baseURL string) ([]*M3U8Variant, error) {
	baseURLObj, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base url: %v", util.ErrMalformedManifest, err)
	}

	buf := bytes.NewBuffer(content)
	playlist, listType, err := m3u8.DecodeFrom(buf, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrMalformedManifest, err)
	}
	if listType != m3u8.MASTER {
		return nil, fmt.Errorf("%w: not a master playlist", util.ErrMalformedManifest)
	}

	master := playlist.(*m3u8.MasterPlaylist)
	variants := make([]*M3U8Variant, 0, len(master.Variants))
	for _, variant := range master.Variants {
		if variant == nil || variant.URI == "" {
			continue
		}
		variants = append(variants, &M3U8Variant{
			URL:        resolveURL(baseURLObj, variant.URI),
			Bandwidth:  int64(variant.Bandwidth),
			Resolution: variant.Resolution,
			Codecs:     variant.Codecs,
		})
	}
	if len(variants) == 0 {
		return nil, fmt.Errorf("%w: master playlist has no variants", util.ErrMalformedManifest)
	}
	return variants, nil
}
