// Package catalog is the static label catalog: the ordered class list the
// models were trained against, plus localized names, risk tiers, and
// descriptions for each class.
package catalog

import "fmt"

// Risk tiers, ordered by clinical urgency.
const (
	RiskBenign = 0
	RiskWatch  = 1
	RiskUrgent = 2
)

// Class describes one diagnosable skin condition.
type Class struct {
	Key           string
	NameEN        string
	NamePL        string
	Risk          int
	DescriptionEN string
	DescriptionPL string
}

// Classes is the canonical class ordering. Index i here corresponds to
// logit i in every loaded model's output; do not reorder.
var Classes = []Class{
	{
		Key:           "Actinic keratoses",
		NameEN:        "Actinic Keratoses",
		NamePL:        "Rogowacenie słoneczne",
		Risk:          RiskWatch,
		DescriptionEN: "Common sun-induced lesion. May develop into skin cancer.",
		DescriptionPL: "Częsta zmiana skórna wywołana słońcem. Może przekształcić się w raka.",
	},
	{
		Key:           "Basal cell carcinoma",
		NameEN:        "Basal Cell Carcinoma",
		NamePL:        "Rak podstawnokomórkowy",
		Risk:          RiskUrgent,
		DescriptionEN: "The most common skin cancer. Slow-growing, rarely metastasises.",
		DescriptionPL: "Najczęstszy nowotwór złośliwy skóry. Rośnie powoli, rzadko daje przerzuty.",
	},
	{
		Key:           "Benign keratosis-like lesions",
		NameEN:        "Benign Keratosis",
		NamePL:        "Łagodne zmiany rogowaciejące",
		Risk:          RiskBenign,
		DescriptionEN: "Age spots, seborrhoeic warts. Usually harmless.",
		DescriptionPL: "Zmiany starcze, brodawki łojotokowe. Zazwyczaj niegroźne.",
	},
	{
		Key:           "Chickenpox",
		NameEN:        "Chickenpox",
		NamePL:        "Ospa wietrzna",
		Risk:          RiskWatch,
		DescriptionEN: "Highly contagious viral disease.",
		DescriptionPL: "Choroba zakaźna (wirusowa).",
	},
	{
		Key:           "Cowpox",
		NameEN:        "Cowpox",
		NamePL:        "Ospa krowia",
		Risk:          RiskWatch,
		DescriptionEN: "Rare zoonotic viral disease.",
		DescriptionPL: "Rzadka choroba wirusowa.",
	},
	{
		Key:           "Dermatofibroma",
		NameEN:        "Dermatofibroma",
		NamePL:        "Włókniak skóry",
		Risk:          RiskBenign,
		DescriptionEN: "Hard, benign nodule under the skin. Non-threatening.",
		DescriptionPL: "Twardy, łagodny guzek pod skórą. Niegroźny.",
	},
	{
		Key:           "HFMD",
		NameEN:        "HFMD",
		NamePL:        "Choroba dłoni, stóp i jamy ustnej",
		Risk:          RiskWatch,
		DescriptionEN: "Viral disease (Hand, Foot and Mouth Disease).",
		DescriptionPL: "Choroba wirusowa (Bostonka).",
	},
	{
		Key:           "Healthy",
		NameEN:        "Healthy Skin",
		NamePL:        "Zdrowa skóra",
		Risk:          RiskBenign,
		DescriptionEN: "No concerning lesions detected.",
		DescriptionPL: "Nie wykryto niepokojących zmian.",
	},
	{
		Key:           "Measles",
		NameEN:        "Measles",
		NamePL:        "Odra",
		Risk:          RiskWatch,
		DescriptionEN: "Highly contagious viral disease.",
		DescriptionPL: "Wysoce zakaźna choroba wirusowa.",
	},
	{
		Key:           "Melanocytic nevi",
		NameEN:        "Melanocytic Nevi (Mole)",
		NamePL:        "Znamię melanocytowe (Pieprzyk)",
		Risk:          RiskBenign,
		DescriptionEN: "Typical mole. Usually benign; monitor for changes.",
		DescriptionPL: "Typowy pieprzyk. Zazwyczaj łagodny, ale warto obserwować zmiany.",
	},
	{
		Key:           "Melanoma",
		NameEN:        "Melanoma",
		NamePL:        "Czerniak",
		Risk:          RiskUrgent,
		DescriptionEN: "The most dangerous skin cancer. Requires urgent oncological consultation!",
		DescriptionPL: "Najgroźniejszy nowotwór skóry. Wymaga pilnej wizyty u onkologa!",
	},
	{
		Key:           "Monkeypox",
		NameEN:        "Monkeypox",
		NamePL:        "Ospa małpia",
		Risk:          RiskWatch,
		DescriptionEN: "Zoonotic viral disease.",
		DescriptionPL: "Choroba wirusowa odzwierzęca.",
	},
	{
		Key:           "Squamous cell carcinoma",
		NameEN:        "Squamous Cell Carcinoma",
		NamePL:        "Rak kolczystokomórkowy",
		Risk:          RiskUrgent,
		DescriptionEN: "Malignant skin tumour. Requires medical treatment.",
		DescriptionPL: "Nowotwór złośliwy skóry. Wymaga leczenia.",
	},
	{
		Key:           "Vascular lesions",
		NameEN:        "Vascular Lesions",
		NamePL:        "Zmiany naczyniowe",
		Risk:          RiskBenign,
		DescriptionEN: "Haemangiomas, spider veins. Usually benign.",
		DescriptionPL: "Naczyniaki, pajączki. Zazwyczaj łagodne.",
	},
}

var byKey = func() map[string]Class {
	m := make(map[string]Class, len(Classes))
	for _, c := range Classes {
		m[c.Key] = c
	}
	return m
}()

// NumClasses is the size of the model output distribution.
func NumClasses() int { return len(Classes) }

// ByIndex returns the class for a model output index.
func ByIndex(i int) (Class, error) {
	if i < 0 || i >= len(Classes) {
		return Class{}, fmt.Errorf("class index %d out of range [0,%d)", i, len(Classes))
	}
	return Classes[i], nil
}

// Lookup returns the class for a class key.
func Lookup(key string) (Class, bool) {
	c, ok := byKey[key]
	return c, ok
}

// Risk returns the risk tier for a class key, or RiskBenign if the key is
// unknown (an unknown key can only come from a corrupted record).
func Risk(key string) int {
	if c, ok := byKey[key]; ok {
		return c.Risk
	}
	return RiskBenign
}
