package store

import (
	"path"
	"strings"

	"github.com/JakeFAU/review-harvester/internal/harvest"
)

const (
	workbookExt = ".xlsx"
	// NoRecordsReportName lists every seed that produced no records.
	NoRecordsReportName = "no_reviews_urls.csv"
	// FetchErrorsReportName lists failed targets with the reason.
	FetchErrorsReportName = "fetch_errors.csv"
)

var nameReplacer = strings.NewReplacer("/", "_", "\\", "_")

// CityDir returns the directory name used for a city.
func CityDir(city string) string {
	return strings.ReplaceAll(city, " ", "_")
}

// WorkbookName returns the file name used for a venue.
func WorkbookName(name string) string {
	return nameReplacer.Replace(name) + workbookExt
}

// ArtifactPath returns the workbook path relative to the output root.
func ArtifactPath(target harvest.Target) string {
	return path.Join(CityDir(target.City), WorkbookName(target.Name))
}
