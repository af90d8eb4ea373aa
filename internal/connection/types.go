package connection

// SSHConfig holds SSH tunnel details
type SSHConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	KeyPath  string `json:"keyPath"`
}

// ConnectionConfig holds database connection details including SSH
type ConnectionConfig struct {
	Type     string    `json:"type"`
	Host     string    `json:"host"`
	Port     int       `json:"port"`
	User     string    `json:"user"`
	Password string    `json:"password"`
	Database string    `json:"database"`
	UseSSH   bool      `json:"useSSH,omitempty"`
	SSH      SSHConfig `json:"ssh,omitempty"`
	Timeout  int       `json:"timeout,omitempty"` // 连接超时（秒）
	Driver   string    `json:"driver,omitempty"`  // custom 类型专用
	DSN      string    `json:"dsn,omitempty"`     // custom 类型专用
	RedisDB  int       `json:"redisDB,omitempty"` // Redis 运行锁专用
}

// ColumnDefinition represents a table column
type ColumnDefinition struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable string `json:"nullable"` // YES/NO
	Key      string `json:"key"`      // PRI, UNI, MUL
}

// RowFilter bounds a read to rows where Column compares to Value.
// Op is either ">" or ">=".
type RowFilter struct {
	Column string      `json:"column"`
	Op     string      `json:"op"`
	Value  interface{} `json:"value"`
}

// ReplaceBatch is one chunk of rows written as a single upsert round trip.
// Every row carries len(Columns) values in column order.
type ReplaceBatch struct {
	Table     string          `json:"table"`
	KeyColumn string          `json:"keyColumn"`
	Columns   []string        `json:"columns"`
	Rows      [][]interface{} `json:"rows"`
}
