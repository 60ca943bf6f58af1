package models

// Filters is the transient filter state applied to the prompt view.
// Values within one field are OR-ed; fields are AND-ed together.
type Filters struct {
	Categories    []string  `json:"categories"`
	Tags          []string  `json:"tags"`
	AIModels      []AIModel `json:"aiModels"`
	FavoritesOnly bool      `json:"favoritesOnly"`
	SearchQuery   string    `json:"searchQuery"`
	CollectionID  string    `json:"collectionId,omitempty"`
}

// DefaultFilters returns the empty filter set that matches every prompt.
func DefaultFilters() Filters {
	return Filters{
		Categories: []string{},
		Tags:       []string{},
		AIModels:   []AIModel{},
	}
}

// FilterPatch updates selected fields of Filters; nil fields are left unchanged.
type FilterPatch struct {
	Categories    []string
	Tags          []string
	AIModels      []AIModel
	FavoritesOnly *bool
	SearchQuery   *string
	CollectionID  *string
}

// Apply returns f with the patch merged in.
func (p FilterPatch) Apply(f Filters) Filters {
	if p.Categories != nil {
		f.Categories = append([]string(nil), p.Categories...)
	}
	if p.Tags != nil {
		f.Tags = append([]string(nil), p.Tags...)
	}
	if p.AIModels != nil {
		f.AIModels = append([]AIModel(nil), p.AIModels...)
	}
	if p.FavoritesOnly != nil {
		f.FavoritesOnly = *p.FavoritesOnly
	}
	if p.SearchQuery != nil {
		f.SearchQuery = *p.SearchQuery
	}
	if p.CollectionID != nil {
		f.CollectionID = *p.CollectionID
	}
	return f
}
