// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package exchange

import "slices"

type (
	// Profile is the payload exchanged between two devices. Its editing model
	// lives elsewhere; the matching engine only transports it.
	Profile struct {
		UserID           string         `json:"userId"`
		ProfileImage     string         `json:"profileImage,omitempty"`
		BackgroundColors []string       `json:"backgroundColors,omitempty"`
		ContactEntries   []ContactEntry `json:"contactEntries"`
	}

	// ContactEntry is a single contact field in a profile section.
	ContactEntry struct {
		FieldType string `json:"fieldType"`
		Value     string `json:"value"`
		Section   string `json:"section"`
		IsVisible bool   `json:"isVisible"`
		Order     int    `json:"order,omitempty"`
	}

	// ProfileFilter reduces a profile to the fields shared for a category.
	ProfileFilter interface {
		Filter(p Profile, c SharingCategory) Profile
	}

	// ProfileFilterFunc adapts a function to ProfileFilter.
	ProfileFilterFunc func(p Profile, c SharingCategory) Profile

	// SectionFilter keeps visible entries of the universal section and of the
	// section matching the sharing category.
	SectionFilter struct{}
)

// Profile sections.
const (
	SectionUniversal = "universal"
	SectionPersonal  = "personal"
	SectionWork      = "work"
)

// Filter implements ProfileFilter.
func (f ProfileFilterFunc) Filter(p Profile, c SharingCategory) Profile {
	return f(p, c)
}

// Filter implements ProfileFilter.
func (SectionFilter) Filter(p Profile, c SharingCategory) Profile {
	out := p
	out.BackgroundColors = slices.Clone(p.BackgroundColors)
	out.ContactEntries = make([]ContactEntry, 0, len(p.ContactEntries))
	for _, e := range p.ContactEntries {
		if !e.IsVisible {
			continue
		}
		if e.Section == SectionUniversal || e.Section == c.Section() {
			out.ContactEntries = append(out.ContactEntries, e)
		}
	}
	return out
}
