// Named provisioning profiles stored in an INI file, so recurring networks
// do not have to be retyped on every run. Sections are profile names.
package profile

import (
	"fmt"
	"time"

	esptouch "github.com/kthomsen/goesptouch"
	"gopkg.in/ini.v1"
)

// Defaults applied when a profile omits a key
const (
	DefaultExpected = 1
	DefaultTimeout  = 60 * time.Second
	DefaultRepeat   = 8
)

// A Profile is one saved set of provisioning inputs
type Profile struct {
	Name      string
	Ssid      string
	Password  string
	Bssid     string
	Server    string
	Expected  int
	Timeout   time.Duration
	Repeat    int
	Broadcast bool
}

// Request builds a validated provisioning request from the profile
func (p *Profile) Request() (*esptouch.Request, error) {
	return esptouch.NewRequest(p.Ssid, p.Password, p.Bssid, p.Server, p.Expected, p.Timeout, p.Repeat, p.Broadcast)
}

// LoadFromFile reads all profiles from a file path on system
func LoadFromFile(filePath string) (map[string]*Profile, error) {
	return parse(filePath)
}

// LoadFromRaw reads all profiles from raw bytes
func LoadFromRaw(data []byte) (map[string]*Profile, error) {
	return parse(data)
}

// Find loads one named profile from a file
func Find(filePath string, name string) (*Profile, error) {
	profiles, err := LoadFromFile(filePath)
	if err != nil {
		return nil, err
	}
	p, ok := profiles[name]
	if !ok {
		return nil, fmt.Errorf("profile %q not found in %v", name, filePath)
	}
	return p, nil
}

func parse(filePathOrData any) (map[string]*Profile, error) {
	file, err := ini.Load(filePathOrData)
	if err != nil {
		return nil, err
	}
	profiles := make(map[string]*Profile)
	for _, section := range file.Sections() {
		if section.Name() == ini.DefaultSection {
			continue
		}
		p := &Profile{
			Name:      section.Name(),
			Ssid:      section.Key("ssid").String(),
			Password:  section.Key("password").String(),
			Bssid:     section.Key("bssid").String(),
			Server:    section.Key("server").String(),
			Expected:  section.Key("expected").MustInt(DefaultExpected),
			Timeout:   section.Key("timeout").MustDuration(DefaultTimeout),
			Repeat:    section.Key("repeat").MustInt(DefaultRepeat),
			Broadcast: section.Key("broadcast").MustBool(true),
		}
		profiles[p.Name] = p
	}
	return profiles, nil
}
