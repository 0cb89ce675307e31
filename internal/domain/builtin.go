package domain

import "math"

// ssd anchors shared by the 128x128 face and pose detectors
var anchors128 = Anchors{
	NumLayers:           4,
	MinScale:            0.1484375,
	MaxScale:            0.75,
	Strides:             []int{8, 16, 16, 16},
	AspectRatios:        []float64{1.0},
	OffsetX:             0.5,
	OffsetY:             0.5,
	InterpolatedScaleAR: 1.0,
	FixedAnchorSize:     true,
}

func builtin() []Config {
	return []Config{
		{
			Name:  Hand,
			Title: "BlazeHandLandmark",
			Detector: DetectorSpec{
				Type:         "blazepalm",
				InputSize:    256,
				NumKeypoints: 7,
				NumAnchors:   2944,
				Anchors: Anchors{
					NumLayers:           5,
					MinScale:            0.1484375,
					MaxScale:            0.75,
					Strides:             []int{8, 16, 32, 32, 32},
					AspectRatios:        []float64{1.0},
					OffsetX:             0.5,
					OffsetY:             0.5,
					InterpolatedScaleAR: 1.0,
					FixedAnchorSize:     true,
				},
				ScoreClipping:    100,
				MinScore:         0.5,
				MinSuppression:   0.3,
				InputMean:        127.5,
				InputStd:         127.5,
				DefaultModel:     "models/blazepalm.onnx",
				InputName:        "input",
				RegressorsOutput: "regressors",
				ScoresOutput:     "classificators",
			},
			Landmark: LandmarkSpec{
				Type:           "blazehandlandmark",
				Resolution:     256,
				NumLandmarks:   21,
				Dims:           3,
				OutputScale:    1,
				ZScaling:       ZPassthrough,
				InputMean:      0,
				InputStd:       255,
				DefaultModel:   "models/blazehand_landmark.onnx",
				InputName:      "input",
				FlagOutput:     "hand_flag",
				LandmarkOutput: "landmarks",
			},
			// wrist (0) sits straight below the middle finger base (2) on an upright hand
			ROI: ROIRule{
				Center: CenterBox,
				Size:   SizeBox,
				From:   2,
				To:     0,
				Expand: 2.6,
				ShiftY: -0.5,
				Theta0: math.Pi / 2,
			},
			Connections: handConnections,
			PointSize:   2,
		},
		{
			Name:  Face,
			Title: "BlazeFaceLandmark",
			Detector: DetectorSpec{
				Type:             "blazeface",
				InputSize:        128,
				NumKeypoints:     6,
				NumAnchors:       896,
				Anchors:          anchors128,
				ScoreClipping:    100,
				MinScore:         0.75,
				MinSuppression:   0.3,
				InputMean:        127.5,
				InputStd:         127.5,
				DefaultModel:     "models/blazeface.onnx",
				InputName:        "input",
				RegressorsOutput: "regressors",
				ScoresOutput:     "classificators",
			},
			Landmark: LandmarkSpec{
				Type:           "blazefacelandmark",
				Resolution:     192,
				NumLandmarks:   468,
				Dims:           3,
				OutputScale:    1,
				ZScaling:       ZPassthrough,
				InputMean:      0,
				InputStd:       255,
				DefaultModel:   "models/blazeface_landmark.onnx",
				InputName:      "input",
				FlagOutput:     "face_flag",
				LandmarkOutput: "landmarks",
			},
			// eye to eye
			ROI: ROIRule{
				Center: CenterBox,
				Size:   SizeBox,
				From:   0,
				To:     1,
				Expand: 1.5,
			},
			Connections: faceConnections,
			PointSize:   1,
		},
		{
			Name:  Pose,
			Title: "BlazePoseLandmark",
			Detector: DetectorSpec{
				Type:             "blazepose",
				InputSize:        128,
				NumKeypoints:     4,
				NumAnchors:       896,
				Anchors:          anchors128,
				ScoreClipping:    100,
				MinScore:         0.5,
				MinSuppression:   0.3,
				InputMean:        127.5,
				InputStd:         127.5,
				DefaultModel:     "models/blazepose.onnx",
				InputName:        "input",
				RegressorsOutput: "regressors",
				ScoresOutput:     "classificators",
			},
			Landmark: LandmarkSpec{
				Type:           "blazeposelandmark",
				Resolution:     256,
				NumLandmarks:   31,
				Dims:           4,
				OutputScale:    1,
				ZScaling:       ZPassthrough,
				InputMean:      0,
				InputStd:       255,
				DefaultModel:   "models/blazepose_landmark.onnx",
				InputName:      "input",
				FlagOutput:     "pose_flag",
				LandmarkOutput: "landmarks",
			},
			// centered on the mid-shoulder anchor (2); anchor 3 lies on the
			// circle enclosing the upper body, so the size doubles the radius
			ROI: ROIRule{
				Center: CenterAnchor,
				Size:   SizeAnchorDistance,
				From:   3,
				To:     2,
				Expand: 3.0,
				Theta0: math.Pi / 2,
			},
			Connections:   poseUpperBody,
			FullBody:      poseFullBody,
			FullBodyAbove: 33,
			PointSize:     2,
		},
	}
}

var handConnections = [][2]int{
	{0, 1}, {1, 2}, {2, 3}, {3, 4},
	{5, 6}, {6, 7}, {7, 8},
	{9, 10}, {10, 11}, {11, 12},
	{13, 14}, {14, 15}, {15, 16},
	{17, 18}, {18, 19}, {19, 20},
	{0, 5}, {5, 9}, {9, 13}, {13, 17}, {0, 17},
}

var poseUpperBody = [][2]int{
	{0, 1}, {1, 2}, {2, 3}, {3, 7},
	{0, 4}, {4, 5}, {5, 6}, {6, 8},
	{9, 10},
	{11, 13}, {13, 15}, {15, 17}, {17, 19}, {19, 15}, {15, 21},
	{12, 14}, {14, 16}, {16, 18}, {18, 20}, {20, 16}, {16, 22},
	{11, 12}, {12, 24}, {24, 23}, {23, 11},
}

var poseFullBody = append(append([][2]int{}, poseUpperBody...),
	[2]int{23, 25}, [2]int{24, 26}, [2]int{25, 27}, [2]int{26, 28},
	[2]int{27, 29}, [2]int{28, 30}, [2]int{29, 31}, [2]int{30, 32},
	[2]int{27, 31}, [2]int{28, 32},
)

// lips, eyes, eyebrows and face oval of the 468 point mesh
var faceConnections = [][2]int{
	{61, 146}, {146, 91}, {91, 181}, {181, 84}, {84, 17},
	{17, 314}, {314, 405}, {405, 321}, {321, 375}, {375, 291},
	{61, 185}, {185, 40}, {40, 39}, {39, 37}, {37, 0},
	{0, 267}, {267, 269}, {269, 270}, {270, 409}, {409, 291},
	{78, 95}, {95, 88}, {88, 178}, {178, 87}, {87, 14},
	{14, 317}, {317, 402}, {402, 318}, {318, 324}, {324, 308},
	{78, 191}, {191, 80}, {80, 81}, {81, 82}, {82, 13},
	{13, 312}, {312, 311}, {311, 310}, {310, 415}, {415, 308},
	{263, 249}, {249, 390}, {390, 373}, {373, 374}, {374, 380},
	{380, 381}, {381, 382}, {382, 362}, {263, 466}, {466, 388},
	{388, 387}, {387, 386}, {386, 385}, {385, 384}, {384, 398}, {398, 362},
	{276, 283}, {283, 282}, {282, 295}, {295, 285},
	{300, 293}, {293, 334}, {334, 296}, {296, 336},
	{33, 7}, {7, 163}, {163, 144}, {144, 145}, {145, 153},
	{153, 154}, {154, 155}, {155, 133}, {33, 246}, {246, 161},
	{161, 160}, {160, 159}, {159, 158}, {158, 157}, {157, 173}, {173, 133},
	{46, 53}, {53, 52}, {52, 65}, {65, 55},
	{70, 63}, {63, 105}, {105, 66}, {66, 107},
	{10, 338}, {338, 297}, {297, 332}, {332, 284}, {284, 251},
	{251, 389}, {389, 356}, {356, 454}, {454, 323}, {323, 361},
	{361, 288}, {288, 397}, {397, 365}, {365, 379}, {379, 378},
	{378, 400}, {400, 377}, {377, 152}, {152, 148}, {148, 176},
	{176, 149}, {149, 150}, {150, 136}, {136, 172}, {172, 58},
	{58, 132}, {132, 93}, {93, 234}, {234, 127}, {127, 162},
	{162, 21}, {21, 54}, {54, 103}, {103, 67}, {67, 109}, {109, 10},
}
