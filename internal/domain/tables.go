package domain

var Tables = []interface{}{
	// Fleet
	&Server{},
	&ServerConnectivity{},
	// Time series
	&MetricSample{},
	&AggregateSample{},
	// Maintenance
	&BackupSnapshot{},
}
