// Package id formats and parses the catalog's friendly record identifiers.
package id

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	citationIDPattern = regexp.MustCompile(`^CIT-\d{5}$`)
	taxonIDPattern    = regexp.MustCompile(`^TAX-\d{5}$`)
	locationIDPattern = regexp.MustCompile(`^LOC-\d{5}$`)
	specimenIDPattern = regexp.MustCompile(`^SPE-\d{5}$`)
	uuidPattern       = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

// Type represents the type of record an identifier names
type Type string

const (
	TypeCitation Type = "citation"
	TypeTaxon    Type = "taxon"
	TypeLocation Type = "location"
	TypeSpecimen Type = "specimen"
)

// FormatCitation formats a citation friendly ID
func FormatCitation(seq int) string {
	return fmt.Sprintf("CIT-%05d", seq)
}

// FormatTaxon formats a taxon friendly ID
func FormatTaxon(seq int) string {
	return fmt.Sprintf("TAX-%05d", seq)
}

// FormatLocation formats a location friendly ID
func FormatLocation(seq int) string {
	return fmt.Sprintf("LOC-%05d", seq)
}

// FormatSpecimen formats a specimen friendly ID
func FormatSpecimen(seq int) string {
	return fmt.Sprintf("SPE-%05d", seq)
}

// Parse parses a friendly ID string and returns the type and sequence number
func Parse(id string) (Type, int, error) {
	id = strings.TrimSpace(id)

	switch {
	case citationIDPattern.MatchString(id):
		seq, _ := strconv.Atoi(id[4:])
		return TypeCitation, seq, nil
	case taxonIDPattern.MatchString(id):
		seq, _ := strconv.Atoi(id[4:])
		return TypeTaxon, seq, nil
	case locationIDPattern.MatchString(id):
		seq, _ := strconv.Atoi(id[4:])
		return TypeLocation, seq, nil
	case specimenIDPattern.MatchString(id):
		seq, _ := strconv.Atoi(id[4:])
		return TypeSpecimen, seq, nil
	default:
		return "", 0, fmt.Errorf("unrecognized ID format: %s", id)
	}
}

// IsUUID reports whether the string looks like a UUID
func IsUUID(s string) bool {
	return uuidPattern.MatchString(strings.TrimSpace(s))
}

// IsFriendlyID reports whether the string looks like any friendly record ID
func IsFriendlyID(s string) bool {
	_, _, err := Parse(s)
	return err == nil
}
