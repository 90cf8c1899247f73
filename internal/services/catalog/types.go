package catalog

type uploadRequest struct {
	FileName string `json:"file_name"`
	Contents string `json:"contents"`
}

type uploadResponse struct {
	ID string `json:"id"`
}

type variantsResponse struct {
	Variants []struct {
		ID    int    `json:"id"`
		Title string `json:"title"`
	} `json:"variants"`
}

type productRequest struct {
	Title           string           `json:"title"`
	Description     string           `json:"description"`
	Tags            []string         `json:"tags,omitempty"`
	BlueprintID     int              `json:"blueprint_id"`
	PrintProviderID int              `json:"print_provider_id"`
	Variants        []productVariant `json:"variants"`
	PrintAreas      []printArea      `json:"print_areas"`
}

type productVariant struct {
	ID        int  `json:"id"`
	Price     int  `json:"price"`
	IsEnabled bool `json:"is_enabled"`
}

type printArea struct {
	VariantIDs   []int         `json:"variant_ids"`
	Placeholders []placeholder `json:"placeholders"`
}

type placeholder struct {
	Position string        `json:"position"`
	Images   []placedImage `json:"images"`
}

type placedImage struct {
	ID    string  `json:"id"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Scale float64 `json:"scale"`
	Angle float64 `json:"angle"`
}

type productResponse struct {
	ID string `json:"id"`
}
