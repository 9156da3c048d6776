package memory

import "github.com/JakeFAU/postal-resolver/internal/resolver"

var metropolitana = resolver.Region{
	Number:      13,
	RomanNumber: "XIII",
	Label:       "Metropolitana de Santiago",
	Name:        "Región Metropolitana de Santiago",
}

var devCommunes = []string{
	"Santiago",
	"Providencia",
	"Las Condes",
	"Ñuñoa",
	"La Florida",
	"Maipú",
	"Puente Alto",
	"Estación Central",
}

// SeedDevelopment loads a handful of Santiago communes so a database-less
// process can resolve real addresses.
func (s *Store) SeedDevelopment() error {
	regionID, err := s.idGen.NewID()
	if err != nil {
		return err
	}
	region := metropolitana
	region.ID = regionID
	for _, name := range devCommunes {
		if _, err := s.SeedCommune(resolver.Commune{Name: name, Region: region}); err != nil {
			return err
		}
	}
	return nil
}
