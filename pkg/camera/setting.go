package camera

import (
	"fmt"
	"math"

	"github.com/vladimirvivien/go4vl/v4l2"
	"go.uber.org/zap"

	"pi-capture/pkg/types"
	"pi-capture/pkg/utils"
)

var logger *zap.SugaredLogger

func init() {
	logger = utils.GetLogger()
}

// Controls of the bcm2835 V4L2 driver.
const (
	CtrlExposureAuto       v4l2.CtrlID = 10094849 // Auto Exposure: 0 auto, 1 manual
	CtrlExposureAbsolute   v4l2.CtrlID = 10094850 // Exposure Time, Absolute, 100µs units
	CtrlExposureBias       v4l2.CtrlID = 10094867 // Auto Exposure, Bias: int menu in 1/3 EV
	CtrlWhiteBalanceAuto   v4l2.CtrlID = 10094868 // White Balance, Auto & Preset: 0 manual, 1 auto
	CtrlISO                v4l2.CtrlID = 10094871 // ISO Sensitivity: int menu
	CtrlISOAuto            v4l2.CtrlID = 10094872 // ISO Sensitivity, Auto: 0 manual, 1 auto
	CtrlRedBalance         v4l2.CtrlID = 9963790
	CtrlBlueBalance        v4l2.CtrlID = 9963791
	CtrlHFlip              v4l2.CtrlID = 9963796
	CtrlVFlip              v4l2.CtrlID = 9963797
	CtrlWBTemperature      v4l2.CtrlID = 9963802
	CtrlRotate             v4l2.CtrlID = 9963810
	CtrlCompressionQuality v4l2.CtrlID = 10291459
)

const (
	exposureAuto   = 0
	exposureManual = 1

	// The bias menu runs from -4 to +4 EV in thirds; index 12 is 0 EV.
	biasZeroIndex = 12
	biasMaxIndex  = 24

	// Colour gains are written in thousandths.
	balanceScale = 1000
)

// isoMenu holds the ISO values behind the indices of CtrlISO. Index 0 is auto.
var isoMenu = []int{0, 100, 200, 400, 800}

// knownCtrlID is what Metadata and Properties report.
var knownCtrlID = []v4l2.CtrlID{
	CtrlExposureAuto,
	CtrlExposureAbsolute,
	CtrlExposureBias,
	CtrlWhiteBalanceAuto,
	CtrlISO,
	CtrlISOAuto,
	CtrlRedBalance,
	CtrlBlueBalance,
	CtrlWBTemperature,
	CtrlRotate,
	CtrlHFlip,
	CtrlVFlip,
	CtrlCompressionQuality,
}

// ToSettings translates a control set into driver writes. Each auto mode is
// switched before its manual values so the driver accepts them.
func ToSettings(c types.Controls) types.CameraSettings {
	var res types.CameraSettings
	add := func(id v4l2.CtrlID, v int) {
		res = append(res, types.CtrlSetting{ID: id, Value: v4l2.CtrlValue(v)})
	}

	if c.AeEnable != nil {
		if *c.AeEnable {
			add(CtrlExposureAuto, exposureAuto)
		} else {
			add(CtrlExposureAuto, exposureManual)
		}
	}
	if c.ExposureTime != nil {
		add(CtrlExposureAbsolute, ExposureToAbsolute(*c.ExposureTime))
	}
	if c.ExposureValue != nil {
		add(CtrlExposureBias, EVToBiasIndex(*c.ExposureValue))
	}
	if c.AnalogueGain != nil {
		add(CtrlISOAuto, 0)
		add(CtrlISO, ISOToMenuIndex(int(math.Round(*c.AnalogueGain*100))))
	}
	if c.AwbEnable != nil {
		if *c.AwbEnable {
			add(CtrlWhiteBalanceAuto, 1)
		} else {
			add(CtrlWhiteBalanceAuto, 0)
		}
	}
	if c.ColourGains != nil {
		add(CtrlRedBalance, int(math.Round(c.ColourGains[0]*balanceScale)))
		add(CtrlBlueBalance, int(math.Round(c.ColourGains[1]*balanceScale)))
	}

	return res
}

// ConfigSettings holds the orientation and quality writes of a session.
func ConfigSettings(cfg Config) types.CameraSettings {
	res := types.CameraSettings{
		{ID: CtrlRotate, Value: v4l2.CtrlValue(cfg.Rotation)},
		{ID: CtrlHFlip, Value: boolValue(cfg.FlipH)},
		{ID: CtrlVFlip, Value: boolValue(cfg.FlipV)},
	}
	if cfg.Quality > 0 {
		res = append(res, types.CtrlSetting{ID: CtrlCompressionQuality, Value: v4l2.CtrlValue(cfg.Quality)})
	}
	return res
}

func boolValue(b bool) v4l2.CtrlValue {
	if b {
		return 1
	}
	return 0
}

// ExposureToAbsolute converts microseconds to the driver's 100µs units.
func ExposureToAbsolute(us int) int {
	v := int(math.Round(float64(us) / 100))
	if v < 1 {
		v = 1
	}
	return v
}

func EVToBiasIndex(ev float64) int {
	i := int(math.Round(ev*3)) + biasZeroIndex
	if i < 0 {
		return 0
	}
	if i > biasMaxIndex {
		return biasMaxIndex
	}
	return i
}

// ISOToMenuIndex picks the nearest manual ISO entry; ties go to the lower one.
func ISOToMenuIndex(iso int) int {
	best := 1
	for i := 2; i < len(isoMenu); i++ {
		if abs(isoMenu[i]-iso) < abs(isoMenu[best]-iso) {
			best = i
		}
	}
	return best
}

// MenuIndexToISO returns 0 for auto or an unknown index.
func MenuIndexToISO(i int) int {
	if i < 0 || i >= len(isoMenu) {
		return 0
	}
	return isoMenu[i]
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Merge returns s with every write of o applied; a control written again
// moves to the position of its latest write.
func Merge(s, o types.CameraSettings) types.CameraSettings {
	res := make(types.CameraSettings, 0, len(s)+len(o))
	for _, cur := range s {
		overridden := false
		for _, n := range o {
			if n.ID == cur.ID {
				overridden = true
				break
			}
		}
		if !overridden {
			res = append(res, cur)
		}
	}
	return append(res, o...)
}

func CtrlToString(ctrl v4l2.Control) string {
	return fmt.Sprintf("Control id (%d) name: %s\t[min: %d; max: %d; step: %d; default: %d current_val: %d]",
		ctrl.ID, ctrl.Name, ctrl.Minimum, ctrl.Maximum, ctrl.Step, ctrl.Default, ctrl.Value)
}
