package steps

// File templates rendered by the catalog. Data fields come from
// config.Profile; rendering is deterministic so repeated runs converge.

const appConfigTemplate = `[options]
db_host = False
db_port = False
db_user = {{.Instance}}
db_password = False
http_port = {{.HTTPPort}}
gevent_port = {{.GatewayPort}}
workers = {{.Workers}}
limit_memory_hard = {{.MemoryHardBytes}}
limit_memory_soft = {{.MemorySoftBytes}}
data_dir = /var/lib/{{.Instance}}
logfile = /var/log/{{.Instance}}/server.log
{{- if .AdminPassword}}
admin_passwd = {{.AdminPassword}}
{{- end}}
{{- if .ProxyMode}}
proxy_mode = True
{{- end}}
`

const serviceUnitTemplate = `[Unit]
Description={{.Instance}} application server
Requires=postgresql.service
After=network.target postgresql.service

[Service]
Type=simple
User={{.Instance}}
Group={{.Instance}}
ExecStart={{.ExecStart}} -c /etc/{{.Instance}}/server.conf
Restart=on-failure
RestartSec=5
KillMode=mixed

[Install]
WantedBy=multi-user.target
`

const proxyConfigTemplate = `upstream {{.Instance}}_app {
    server 127.0.0.1:{{.HTTPPort}};
}

upstream {{.Instance}}_gateway {
    server 127.0.0.1:{{.GatewayPort}};
}

server {
    listen 80;
    server_name {{.ServerName}};

    proxy_read_timeout 720s;
    proxy_connect_timeout 720s;
    proxy_send_timeout 720s;
    client_max_body_size 128m;

    proxy_set_header X-Forwarded-Host $host;
    proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;
    proxy_set_header X-Forwarded-Proto $scheme;
    proxy_set_header X-Real-IP $remote_addr;

    location /websocket {
        proxy_pass http://{{.Instance}}_gateway;
        proxy_set_header Upgrade $http_upgrade;
        proxy_set_header Connection "upgrade";
    }

    location / {
        proxy_pass http://{{.Instance}}_app;
        proxy_redirect off;
    }

    gzip on;
    gzip_types text/css text/plain application/json application/javascript;
}
`

const sshdHardeningTemplate = `PermitRootLogin no
PasswordAuthentication no
ChallengeResponseAuthentication no
X11Forwarding no
MaxAuthTries 3
LoginGraceTime 30
`

const backupScriptTemplate = `#!/bin/sh
set -eu

BACKUP_DIR=/var/backups/{{.Instance}}
STAMP=$(date +%Y%m%d-%H%M%S)

mkdir -p "$BACKUP_DIR"
sudo -n -u postgres pg_dump --format=custom --file="$BACKUP_DIR/{{.Instance}}-$STAMP.dump" {{.Instance}}
tar -czf "$BACKUP_DIR/{{.Instance}}-$STAMP-data.tar.gz" -C /var/lib {{.Instance}}

find "$BACKUP_DIR" -name '{{.Instance}}-*' -mtime +{{.RetentionDays}} -delete
`
