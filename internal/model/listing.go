package model

import (
	"errors"
	"fmt"
	"sort"
)

// Listing is one rental property card scraped from a search results page.
type Listing struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Price    int    `json:"price"`
	Calendar string `json:"calendar"`
	Rooms    int    `json:"rooms"`
	People   int    `json:"people"`
	Img      string `json:"img"`
	URL      string `json:"url"`
	Size     int    `json:"size"`
}

// Validate checks the invariants every stored listing must satisfy.
func (l Listing) Validate() error {
	if l.ID == "" {
		return &ParseError{Field: "id", Err: errors.New("empty listing id")}
	}
	for field, v := range map[string]int{"price": l.Price, "rooms": l.Rooms, "people": l.People, "size": l.Size} {
		if v < 0 {
			return &ParseError{Field: field, Err: fmt.Errorf("negative value %d for listing %s", v, l.ID)}
		}
	}
	return nil
}

// Snapshot maps listing ID to listing: everything observed in one fetch cycle.
type Snapshot map[string]Listing

// IDs returns the snapshot keys in ascending order.
func (s Snapshot) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Sorted returns the listings ordered by price, then ID.
func (s Snapshot) Sorted() []Listing {
	out := make([]Listing, 0, len(s))
	for _, l := range s {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Price == out[j].Price {
			return out[i].ID < out[j].ID
		}
		return out[i].Price < out[j].Price
	})
	return out
}
