package domain

var Tables = []interface{}{
	&SpeedTestResult{},
}
