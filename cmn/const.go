package cmn

// Byte-size units, grounded on aistore's cmn/api_const.go constants.
const (
	KiB = 1024
	MiB = 1024 * KiB
	GiB = 1024 * MiB
)

// Cluster geometry constants shared by every layer (§3).
const (
	ClusterSize  = 4096 // bytes per cluster
	CellSize     = 4    // bytes per grid cell
	CellsPerClu  = ClusterSize / CellSize
	SuperblockSz = 4096 // bytes, §6.2
	FATEntrySz   = 96   // bytes, §6.3
)
