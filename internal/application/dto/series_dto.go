package dto

// CreateSeriesRequest alta de una serie de numeración.
type CreateSeriesRequest struct {
	Name        string `json:"name"`
	Prefix      string `json:"prefix"`
	Type        string `json:"type"` // STANDARD | RECTIFYING
	ResetYearly bool   `json:"reset_yearly"`
	IsDefault   bool   `json:"is_default"`
}

// SetSeriesNumberRequest ajuste manual del contador de la serie.
type SetSeriesNumberRequest struct {
	CurrentNumber int64 `json:"current_number"`
}

// SetSeriesActiveRequest activación/desactivación de la serie.
type SetSeriesActiveRequest struct {
	IsActive bool `json:"is_active"`
}

// SeriesResponse representación de una serie en la API.
type SeriesResponse struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Prefix        string `json:"prefix"`
	Year          int    `json:"year"`
	Type          string `json:"type"`
	CurrentNumber int64  `json:"current_number"`
	ResetYearly   bool   `json:"reset_yearly"`
	IsDefault     bool   `json:"is_default"`
	IsActive      bool   `json:"is_active"`
	Editable      bool   `json:"editable"`
}
