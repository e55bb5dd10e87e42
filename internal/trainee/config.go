package trainee

type Config struct {
	ICEServers []ICEServerConfig
	PortRange  PortRange
	Buffers    Buffers
	MaxSDPSize int
}

type ICEServerConfig struct {
	URLs       []string
	Username   string
	Credential string
}

type PortRange struct {
	Min int
	Max int
}

type Buffers struct {
	AudioFrames   int
	ICECandidates int
}
