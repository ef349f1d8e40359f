package testutil

// SampleIOSVersion is a representative Cisco IOS "show version" capture.
const SampleIOSVersion = `Cisco IOS Software, C2960X Software (C2960X-UNIVERSALK9-M), Version 15.2(7)E, RELEASE SOFTWARE (fc3)
Technical Support: http://www.cisco.com/techsupport

abc-sw-01 uptime is 5 weeks, 3 days, 2 hours, 11 minutes
System image file is "flash:c2960x-universalk9-mz.152-7.E.bin"

Model Number                    : WS-C2960X-48TS-L
System Serial Number            : FOC1234ABCD
`

// SampleStackedVersion is a three-member stack's "show version" capture.
const SampleStackedVersion = `Cisco IOS Software, Version 16.12.4, RELEASE SOFTWARE

abc-stack-01 uptime is 10 weeks

Model Number                    : C9300-48UXM
System Serial Number            : FCW2425G0BB

Model Number                    : C9300-48UXM
System Serial Number            : FJC2422E0NW

Model Number                    : C9300-48UXM
System Serial Number            : FJC2422E0NB
`

// SampleIOSInventory is a representative "show inventory" capture.
const SampleIOSInventory = `NAME: "1", DESCR: "WS-C3750G-24TS-1U chassis"
PID: WS-C3750G-24TS-1U, VID: V05, SN: FOC1234X0VB

NAME: "GigabitEthernet1/0/25", DESCR: "1000BaseSX SFP"
PID: GLC-SX-MM, VID: , SN: AGM5678ZZZ
`
