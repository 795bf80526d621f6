package analysis

import "strings"

// minExifEntries is the entry count below which a map counts as having no
// real metadata. The four synthesized keys alone stay below it.
const minExifEntries = 5

var (
	cameraTags    = []string{"Make", "Model", "LensModel"}
	timestampTags = []string{"DateTime", "DateTimeOriginal", "DateTimeDigitized"}

	// suspiciousSoftware are lower-case substrings of Software values left by
	// editors and image generators.
	suspiciousSoftware = []string{
		"photoshop",
		"gimp",
		"midjourney",
		"dalle",
		"dall-e",
		"stable diffusion",
	}

	// generatorSizes are square edge lengths that image generators emit by
	// default.
	generatorSizes = []int{256, 512, 640, 768, 1024}
)

// DetectAnomalies derives the metadata red flags of m. It is a pure function
// of its input.
func DetectAnomalies(m ExifMap) AnomalyFlags {
	return AnomalyFlags{
		MissingExif:        len(m) < minExifEntries,
		MissingCameraInfo:  !hasAny(m, cameraTags),
		SuspiciousSoftware: isSuspiciousSoftware(m.String("Software")),
		MissingTimestamp:   !hasAny(m, timestampTags),
		UnusualDimensions:  isGeneratorSize(m),
	}
}

func hasAny(m ExifMap, keys []string) bool {
	for _, k := range keys {
		if m.Has(k) {
			return true
		}
	}
	return false
}

func isSuspiciousSoftware(software string) bool {
	if software == "" {
		return false
	}
	software = strings.ToLower(software)
	for _, s := range suspiciousSoftware {
		if strings.Contains(software, s) {
			return true
		}
	}
	return false
}

func isGeneratorSize(m ExifMap) bool {
	w, h, ok := m.Size()
	if !ok || w != h {
		return false
	}
	for _, s := range generatorSizes {
		if w == s {
			return true
		}
	}
	return false
}
