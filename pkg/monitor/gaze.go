package monitor

// ClassifyGaze maps both pupils to a direction. Any missing or degenerate
// eye yields Center; partial data never produces a non-neutral direction.
func ClassifyGaze(cfg Config, s *GazeSample) Direction {
	if s == nil {
		return DirectionCenter
	}

	lx, ly, lok := normalizePupil(s.Left)
	rx, ry, rok := normalizePupil(s.Right)
	if !lok || !rok {
		return DirectionCenter
	}

	third := cfg.GazeHorizontalThird
	switch {
	case lx < third && rx < third:
		return DirectionLeft
	case lx > 1-third && rx > 1-third:
		return DirectionRight
	case ly < cfg.GazeUpThreshold && ry < cfg.GazeUpThreshold:
		return DirectionUp
	case ly > cfg.GazeDownThreshold && ry > cfg.GazeDownThreshold:
		return DirectionDown
	default:
		return DirectionCenter
	}
}

// normalizePupil returns the pupil position as fractions of the eye box
func normalizePupil(e EyeSample) (x, y float64, ok bool) {
	if !e.Found || e.Width <= 0 || e.Height <= 0 {
		return 0, 0, false
	}
	return e.PupilX / e.Width, e.PupilY / e.Height, true
}
