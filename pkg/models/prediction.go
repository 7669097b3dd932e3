package models

// ClassPrediction is one ranked guess from a single model: the class key,
// its localized display names, and the softmax probability for this image.
// Immutable once produced by the inference engine.
type ClassPrediction struct {
	ClassKey      string  `db:"class_key"      json:"class_key"`
	NameEN        string  `db:"name_en"        json:"name_en"`
	NamePL        string  `db:"name_pl"        json:"name_pl"`
	Confidence    float64 `db:"confidence"     json:"confidence"`
	RiskTier      int     `db:"risk_tier"      json:"risk_tier"`
	DescriptionEN string  `db:"description_en" json:"description_en"`
	DescriptionPL string  `db:"description_pl" json:"description_pl"`
}
