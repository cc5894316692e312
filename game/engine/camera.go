package engine

// FollowCamera moves the anchor a fraction alpha of the way to the target on
// each axis. Alpha outside (0,1] falls back to CameraLerp.
func FollowCamera(anchor, target Vec2, alpha float64) Vec2 {
	if !(alpha > 0 && alpha <= 1) {
		alpha = CameraLerp
	}
	return Vec2{
		X: anchor.X + (target.X-anchor.X)*alpha,
		Y: anchor.Y + (target.Y-anchor.Y)*alpha,
	}
}
