package models

// Category is a user-defined label for grouping prompts.
// Prompts reference categories by name only.
type Category struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
	Icon  string `json:"icon,omitempty"`
}

// CategoryIcons is the catalog of symbolic icon names a category may use.
var CategoryIcons = []string{
	"folder", "code", "pen", "image", "chart", "sparkles", "briefcase",
	"book", "lightbulb", "message", "music", "video", "globe", "star",
	"heart", "zap", "terminal", "palette", "search", "tag",
}

// DefaultCategories returns the starter category set used when none are stored.
func DefaultCategories() []Category {
	return []Category{
		{ID: "writing", Name: "Writing", Color: "#3B82F6"},
		{ID: "code", Name: "Code", Color: "#10B981"},
		{ID: "image", Name: "Image Generation", Color: "#8B5CF6"},
		{ID: "analysis", Name: "Analysis", Color: "#F59E0B"},
		{ID: "creative", Name: "Creative", Color: "#EC4899"},
		{ID: "productivity", Name: "Productivity", Color: "#6366F1"},
		{ID: "other", Name: "Other", Color: "#6B7280"},
	}
}
