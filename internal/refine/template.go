package refine

// Slot is one named field of a refinement template.
type Slot struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Required    bool     `json:"required"`
	Options     []string `json:"options,omitempty"`
	Examples    []string `json:"examples,omitempty"`
}

// Template is the fixed slot layout the analysis pass fills in.
type Template struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Slots       []Slot `json:"slots"`
}

// Slot looks up a slot by name.
func (t Template) Slot(name string) (Slot, bool) {
	for _, s := range t.Slots {
		if s.Name == name {
			return s, true
		}
	}
	return Slot{}, false
}

// WebProjectTemplate is the built-in template for web application requests.
func WebProjectTemplate() Template {
	return Template{
		Name:        "Modern Web Application Template",
		Description: "A template for creating modern web applications",
		Slots: []Slot{
			{
				Name:        "projectName",
				Description: "Name of the project/application",
				Required:    true,
				Examples:    []string{"My Portfolio", "E-commerce Store", "Blog Website"},
			},
			{
				Name:        "projectType",
				Description: "Type of web application",
				Required:    true,
				Options:     []string{"portfolio", "e-commerce", "blog", "dashboard", "landing-page", "social-media"},
				Examples:    []string{"portfolio website", "online store", "personal blog"},
			},
			{
				Name:        "mainFeatures",
				Description: "Key features and functionality",
				Required:    true,
				Examples:    []string{"user authentication", "payment processing", "content management", "responsive design"},
			},
			{
				Name:        "designStyle",
				Description: "Visual design preferences",
				Examples:    []string{"modern", "minimalist", "colorful", "dark theme", "professional"},
			},
			{
				Name:        "primaryColor",
				Description: "Primary color scheme",
				Examples:    []string{"blue", "#3B82F6", "corporate blue", "warm colors"},
			},
			{
				Name:        "targetAudience",
				Description: "Target users or audience",
				Examples:    []string{"young professionals", "small businesses", "students", "general public"},
			},
			{
				Name:        "technologies",
				Description: "Preferred technologies or frameworks",
				Examples:    []string{"React", "Vue.js", "Next.js", "Tailwind CSS"},
			},
			{
				Name:        "pages",
				Description: "Specific pages or sections needed",
				Examples:    []string{"home page", "about page", "contact form", "product catalog"},
			},
			{
				Name:        "animations",
				Description: "Animation or interaction preferences",
				Examples:    []string{"smooth scrolling", "hover effects", "loading animations"},
			},
		},
	}
}
