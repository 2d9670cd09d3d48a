package schema

import "fmt"

// Deg2Sexagesimal converts decimal-degree RA/Dec to sexagesimal
// hms/dms strings colon-separated, matching
// original_source/tarxiv/utils.py's deg2sex (SkyCoord.to_string
// "hmsdms", sep=":").
func Deg2Sexagesimal(raDeg, decDeg float64) (raHMS, decDMS string) {
	return raToHMS(raDeg), decToDMS(decDeg)
}

func raToHMS(raDeg float64) string {
	hoursTotal := raDeg / 15.0
	h := int(hoursTotal)
	remMin := (hoursTotal - float64(h)) * 60
	m := int(remMin)
	s := (remMin - float64(m)) * 60
	return fmt.Sprintf("%02d:%02d:%06.3f", h, m, s)
}

func decToDMS(decDeg float64) string {
	sign := "+"
	d := decDeg
	if d < 0 {
		sign = "-"
		d = -d
	}
	deg := int(d)
	remMin := (d - float64(deg)) * 60
	m := int(remMin)
	s := (remMin - float64(m)) * 60
	return fmt.Sprintf("%s%02d:%02d:%05.2f", sign, deg, m, s)
}
