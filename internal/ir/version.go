package ir

// EngineVersion is the sandcalc engine version.
const EngineVersion = "0.1.0"
