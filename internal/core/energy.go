package core

// EnergyType classifies certificates and consumption by generation source.
type EnergyType int

const (
	EnergyOther EnergyType = iota
	EnergySolar
	EnergyWind
	EnergyHydro
	EnergyGeothermal
	EnergyBiomass
)

// EnergyTypes lists every category in display order.
var EnergyTypes = []EnergyType{
	EnergySolar,
	EnergyWind,
	EnergyHydro,
	EnergyGeothermal,
	EnergyBiomass,
	EnergyOther,
}

var energyLabels = map[EnergyType]string{
	EnergySolar:      "Solar",
	EnergyWind:       "Wind",
	EnergyHydro:      "Hydro",
	EnergyGeothermal: "Geothermal",
	EnergyBiomass:    "Biomass",
	EnergyOther:      "Other",
}

var energyColors = map[EnergyType]string{
	EnergySolar:      "#ffad46",
	EnergyWind:       "#82ca9d",
	EnergyHydro:      "#73c2fb",
	EnergyGeothermal: "#4f2f06",
	EnergyBiomass:    "#96742f",
	EnergyOther:      "#bdbdbd",
}

// ResolveCategory maps an API energy type id to its category. Any id outside
// 1..5 is Other.
func ResolveCategory(id int) EnergyType {
	switch id {
	case 1:
		return EnergySolar
	case 2:
		return EnergyWind
	case 3:
		return EnergyHydro
	case 4:
		return EnergyGeothermal
	case 5:
		return EnergyBiomass
	default:
		return EnergyOther
	}
}

// Label returns the capitalised display name.
func (e EnergyType) Label() string {
	if l, ok := energyLabels[e]; ok {
		return l
	}
	return energyLabels[EnergyOther]
}

// Color returns the chart colour as a #rrggbb string.
func (e EnergyType) Color() string {
	if c, ok := energyColors[e]; ok {
		return c
	}
	return energyColors[EnergyOther]
}

func (e EnergyType) String() string {
	return e.Label()
}
