package pipeline

// Correct returns the calibration offset and the corrected value for one
// reading. corrected is algebraically equal to ideal; it is kept as an
// explicit audit field.
func Correct(measured, ideal float64) (offset, corrected float64) {
	offset = measured - ideal
	corrected = measured - offset
	return offset, corrected
}
